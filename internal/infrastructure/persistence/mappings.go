package persistence

import (
	"context"

	"github.com/pkg/errors"

	"github.com/zinrai/ddi-ipam-go/internal/domain"
	"github.com/zinrai/ddi-ipam-go/internal/infrastructure/db"
)

func (r *IPAMRepository) InsertMapping(ctx context.Context, m domain.MemberMapping) error {
	query := `
		INSERT INTO member_mappings (map_id, member_name, member_type, exclusive)
		VALUES ($1, $2, $3, FALSE)
		ON CONFLICT (map_id, member_name, member_type) DO NOTHING
	`
	if _, err := r.db.ExecContext(ctx, query, m.MapID, m.MemberName, string(m.Type)); err != nil {
		return errors.Wrap(err, "failed to insert member mapping")
	}
	return nil
}

// InsertExclusiveMapping inserts only when the scope has no mapping of the
// type yet. The partial unique indexes on exclusive rows reject a member
// already held by another scope and a second exclusive row for the scope
// written by a concurrent transaction.
func (r *IPAMRepository) InsertExclusiveMapping(ctx context.Context, m domain.MemberMapping) (bool, error) {
	query := `
		INSERT INTO member_mappings (map_id, member_name, member_type, exclusive)
		SELECT $1, $2, $3, TRUE
		WHERE NOT EXISTS (
			SELECT 1 FROM member_mappings WHERE map_id = $1 AND member_type = $3
		)
	`
	result, err := r.db.ExecContext(ctx, query, m.MapID, m.MemberName, string(m.Type))
	if err != nil {
		if db.IsUniqueViolation(err) {
			return false, errors.Wrapf(domain.ErrConflict, "%s member %s for %s", m.Type, m.MemberName, m.MapID)
		}
		return false, errors.Wrap(err, "failed to insert member mapping")
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return false, errors.Wrap(err, "failed to get rows affected")
	}
	return rowsAffected > 0, nil
}

func (r *IPAMRepository) FindMappings(ctx context.Context, mapID string, memberType domain.MemberType) ([]string, error) {
	query := `SELECT member_name FROM member_mappings WHERE map_id = $1 AND member_type = $2 ORDER BY member_name`
	return r.names(ctx, query, mapID, string(memberType))
}

func (r *IPAMRepository) DeleteMappings(ctx context.Context, mapID string) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM member_mappings WHERE map_id = $1`, mapID); err != nil {
		return errors.Wrap(err, "failed to delete member mappings")
	}
	return nil
}

func (r *IPAMRepository) UsedMembers(ctx context.Context, memberType domain.MemberType) ([]string, error) {
	query := `SELECT DISTINCT member_name FROM member_mappings WHERE member_type = $1 ORDER BY member_name`
	return r.names(ctx, query, string(memberType))
}

func (r *IPAMRepository) names(ctx context.Context, query string, args ...interface{}) ([]string, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, errors.Wrap(err, "failed to query member mappings")
	}
	defer rows.Close()

	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, errors.Wrap(err, "failed to scan member mapping row")
		}
		names = append(names, name)
	}
	return names, rows.Err()
}
