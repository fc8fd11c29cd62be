package main

import (
	"context"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/zinrai/ddi-ipam-go/internal/config"
	"github.com/zinrai/ddi-ipam-go/internal/domain"
	"github.com/zinrai/ddi-ipam-go/internal/infrastructure/db"
	"github.com/zinrai/ddi-ipam-go/internal/members"
	"github.com/zinrai/ddi-ipam-go/internal/policy"
)

var (
	validateCmd = &cobra.Command{
		Use:   "validate",
		Short: "Check the configuration, conditional config and member catalog",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd.Flags())
			if err != nil {
				return err
			}
			registry, err := members.LoadFile(cfg.Policy.MembersConfig)
			if err != nil {
				return err
			}
			rules, err := policy.LoadRulesFile(cfg.Policy.ConditionalConfig)
			if err != nil {
				return err
			}
			fmt.Printf("configuration is valid: %d rules, %d members\n", len(rules), registry.Len())
			return nil
		},
	}

	migrateCmd = &cobra.Command{
		Use:   "migrate",
		Short: "Create the database schema",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd.Flags())
			if err != nil {
				return err
			}
			if cfg.Storage.Driver == config.StorageMemory {
				return fmt.Errorf("storage driver %s has no schema", cfg.Storage.Driver)
			}
			database, err := db.Open(cfg.Storage.Driver, cfg.Storage.DSN)
			if err != nil {
				return err
			}
			defer database.Close()
			return database.Migrate()
		},
	}

	membersCmd = &cobra.Command{
		Use:   "members",
		Short: "List the member catalog and the members reserved by any scope",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd.Flags())
			if err != nil {
				return err
			}
			registry, err := members.LoadFile(cfg.Policy.MembersConfig)
			if err != nil {
				return err
			}
			repo, closeStore, err := openStore(cfg.Storage)
			if err != nil {
				return err
			}
			defer closeStore()

			used := map[domain.MemberType]map[string]bool{}
			for _, t := range []domain.MemberType{domain.DHCPMember, domain.DNSMember} {
				names, err := repo.UsedMembers(context.Background(), t)
				if err != nil {
					return err
				}
				used[t] = map[string]bool{}
				for _, n := range names {
					used[t][n] = true
				}
			}

			w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
			defer w.Flush()
			fmt.Fprintln(w, "NAME\tIPV4\tIPV6\tDHCP\tDNS")
			for _, m := range registry.Members() {
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n", m.Name, m.IPv4Addr, m.IPv6Addr,
					reserved(used[domain.DHCPMember][m.Name]), reserved(used[domain.DNSMember][m.Name]))
			}
			return nil
		},
	}
)

func reserved(ok bool) string {
	if ok {
		return "reserved"
	}
	return "-"
}
