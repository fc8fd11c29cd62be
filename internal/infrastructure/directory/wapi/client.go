// Package wapi talks to the directory appliance over its REST API.
package wapi

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"net"
	"net/http"
	"strings"

	resty "github.com/go-resty/resty/v2"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/zinrai/ddi-ipam-go/internal/config"
	"github.com/zinrai/ddi-ipam-go/internal/domain"
	"github.com/zinrai/ddi-ipam-go/internal/log"
)

var _ domain.DirectoryService = (*Client)(nil)

// Client implements the directory service against an appliance. Every
// call maps transport failures to ConnectionError, TimeoutError or
// AuthenticationError and API failures to DirectoryError.
type Client struct {
	client           *resty.Client
	configureForDHCP bool
}

// New creates a client for the API at cfg.URL, e.g.
// https://gm.example.com/wapi/v2.3.
func New(cfg config.DirectoryConfig, configureForDHCP bool) *Client {
	client := resty.New()

	client.SetHostURL(strings.TrimSuffix(cfg.URL, "/"))
	client.SetBasicAuth(cfg.Username, cfg.Password)
	client.SetHeader("Content-Type", "application/json")
	client.SetHeader("Accept", "application/json")
	if cfg.Timeout > 0 {
		client.SetTimeout(cfg.Timeout)
	}
	if cfg.InsecureSkipVerify {
		client.SetTLSClientConfig(&tls.Config{InsecureSkipVerify: true})
	}

	return &Client{client: client, configureForDHCP: configureForDHCP}
}

type apiError struct {
	Error string `json:"Error"`
	Code  string `json:"code"`
	Text  string `json:"text"`
}

func (c *Client) do(ctx context.Context, method, path string, query map[string]string, body, out interface{}, op, object string) error {
	req := c.client.R().SetContext(ctx)
	if len(query) > 0 {
		req.SetQueryParams(query)
	}
	if body != nil {
		req.SetBody(body)
	}

	log.G(ctx).WithFields(logrus.Fields{
		"method": method,
		"path":   path,
	}).Debug("directory request")

	resp, err := req.Execute(method, "/"+strings.TrimPrefix(path, "/"))
	if err != nil {
		return transportError(ctx, err)
	}
	if resp.StatusCode() == http.StatusUnauthorized || resp.StatusCode() == http.StatusForbidden {
		return &domain.AuthenticationError{}
	}
	if resp.IsError() {
		return apiFailure(resp, op, object)
	}
	if out != nil && len(resp.Body()) > 0 {
		if err := json.Unmarshal(resp.Body(), out); err != nil {
			return errors.Wrapf(err, "cannot decode %s %s response", op, object)
		}
	}
	return nil
}

func transportError(ctx context.Context, err error) error {
	if errors.Is(err, context.DeadlineExceeded) || ctx.Err() == context.DeadlineExceeded {
		return &domain.TimeoutError{}
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return &domain.TimeoutError{}
	}
	return &domain.ConnectionError{Reason: err.Error()}
}

func apiFailure(resp *resty.Response, op, object string) error {
	var body apiError
	text := resp.String()
	if err := json.Unmarshal(resp.Body(), &body); err == nil && body.Text != "" {
		text = body.Text
	}

	derr := &domain.DirectoryError{Op: op, Object: object, Code: resp.StatusCode(), Body: text}
	switch {
	case resp.StatusCode() == http.StatusNotFound:
		derr.Kind = domain.ErrNotFound
	case strings.Contains(body.Code, "Conflict"):
		derr.Kind = domain.ErrConflict
	case resp.StatusCode() == http.StatusBadRequest:
		derr.Kind = domain.ErrValidation
	}
	return derr
}

// isExhausted reports whether the appliance found no free address for a
// next available address function.
func isExhausted(err error) bool {
	var derr *domain.DirectoryError
	if !errors.As(err, &derr) {
		return false
	}
	return strings.Contains(derr.Body, "available IP address")
}

func (c *Client) get(ctx context.Context, objtype string, query map[string]string, fields string, out interface{}) error {
	q := map[string]string{}
	for k, v := range query {
		q[k] = v
	}
	if fields != "" {
		q["_return_fields"] = fields
	}
	return c.do(ctx, http.MethodGet, objtype, q, nil, out, "get", objtype)
}

// refs returns the references of the objects matching query.
func (c *Client) refs(ctx context.Context, objtype string, query map[string]string) ([]string, error) {
	var objs []struct {
		Ref string `json:"_ref"`
	}
	if err := c.get(ctx, objtype, query, "", &objs); err != nil {
		return nil, err
	}
	refs := make([]string, 0, len(objs))
	for _, o := range objs {
		refs = append(refs, o.Ref)
	}
	return refs, nil
}

func (c *Client) exists(ctx context.Context, objtype string, query map[string]string) (bool, error) {
	q := map[string]string{"_max_results": "1"}
	for k, v := range query {
		q[k] = v
	}
	refs, err := c.refs(ctx, objtype, q)
	return len(refs) > 0, err
}

func (c *Client) create(ctx context.Context, objtype string, body interface{}, fields string, out interface{}) error {
	var query map[string]string
	if fields != "" {
		query = map[string]string{"_return_fields": fields}
	}
	return c.do(ctx, http.MethodPost, objtype, query, body, out, "create", objtype)
}

func (c *Client) update(ctx context.Context, ref string, body interface{}, fields string, out interface{}) error {
	var query map[string]string
	if fields != "" {
		query = map[string]string{"_return_fields": fields}
	}
	return c.do(ctx, http.MethodPut, ref, query, body, out, "update", ref)
}

func (c *Client) delete(ctx context.Context, ref string) error {
	return c.do(ctx, http.MethodDelete, ref, nil, nil, nil, "delete", ref)
}

// deleteAll removes every object matching query.
func (c *Client) deleteAll(ctx context.Context, objtype string, query map[string]string) error {
	refs, err := c.refs(ctx, objtype, query)
	if err != nil {
		return err
	}
	for _, ref := range refs {
		if err := c.delete(ctx, ref); err != nil {
			return err
		}
	}
	return nil
}

func (c *Client) call(ctx context.Context, ref, function string, body interface{}) error {
	return c.do(ctx, http.MethodPost, ref, map[string]string{"_function": function}, body, nil, function, ref)
}

// RestartServices restarts the services of every member that needs it.
func (c *Client) RestartServices(ctx context.Context, members []domain.Member) error {
	for _, m := range members {
		refs, err := c.refs(ctx, "member", map[string]string{"host_name": m.Name})
		if err != nil {
			return err
		}
		for _, ref := range refs {
			err := c.call(ctx, ref, "restartservices", map[string]string{
				"restart_option": "RESTART_IF_NEEDED",
				"service_option": "ALL",
			})
			if err != nil {
				return err
			}
		}
	}
	return nil
}
