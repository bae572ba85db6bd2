package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"caseline/internal/app"
	"caseline/internal/config"
	"caseline/internal/db"
	"caseline/internal/domain"
	"caseline/internal/engine"
	"caseline/internal/engine/auth"
	"caseline/internal/engine/workflow"
	"caseline/internal/server"
)

var rootCmd = &cobra.Command{
	Use:   "cl",
	Short: "Caseline CLI",
	Long: `Caseline registers service cases and moves them through their workflow.
- Operational state is derived from attention status, payment status and current assignments.
- Each role may perform a fixed set of actions per state; admins may override closed or cancelled cases.
- Every change is written to the case audit trail in the same transaction.`,
	SilenceUsage: true,
}

func main() {
	cobra.OnInitialize(initConfig)
	addPersistentFlags()
	registerCommands()
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Println("error:", err)
		os.Exit(1)
	}
}

func initConfig() {
	viper.SetEnvPrefix("CASELINE")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()
}

func addPersistentFlags() {
	rootCmd.PersistentFlags().StringP("workspace", "w", ".", "workspace directory")
	rootCmd.PersistentFlags().Bool("json", false, "output JSON")
	rootCmd.PersistentFlags().Bool("dev", false, "human-readable logs")
	rootCmd.PersistentFlags().String("actor-id", "local-admin", "acting person id")
	rootCmd.PersistentFlags().String("roles", "ADMIN", "comma separated roles of the actor")
	_ = viper.BindPFlag("workspace", rootCmd.PersistentFlags().Lookup("workspace"))
	_ = viper.BindPFlag("json", rootCmd.PersistentFlags().Lookup("json"))
	_ = viper.BindPFlag("dev", rootCmd.PersistentFlags().Lookup("dev"))
	_ = viper.BindPFlag("actor-id", rootCmd.PersistentFlags().Lookup("actor-id"))
	_ = viper.BindPFlag("roles", rootCmd.PersistentFlags().Lookup("roles"))
}

func registerCommands() {
	rootCmd.AddCommand(initCmd())
	rootCmd.AddCommand(caseCmd())
	rootCmd.AddCommand(staffCmd())
	rootCmd.AddCommand(serviceCmd())
	rootCmd.AddCommand(promoterCmd())
	rootCmd.AddCommand(policyCmd())
	rootCmd.AddCommand(tokenCmd())
	rootCmd.AddCommand(apiKeyCmd())
	rootCmd.AddCommand(serveCmd())
}

func initCmd() *cobra.Command {
	var force bool
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Create caseline.yml and the workspace database",
		RunE: func(cmd *cobra.Command, args []string) error {
			workspace := viper.GetString("workspace")
			if _, err := db.EnsureWorkspace(workspace); err != nil {
				return err
			}
			path := config.Path(workspace)
			if _, err := os.Stat(path); err == nil && !force {
				fmt.Printf("%s exists; keeping it (use --force to overwrite)\n", path)
			} else {
				if err := os.WriteFile(path, []byte(config.GenerateDefault()), 0o644); err != nil {
					return err
				}
				fmt.Printf("wrote %s\n", path)
			}
			a, err := app.Open(cmd.Context(), workspace, viper.GetBool("dev"))
			if err != nil {
				return err
			}
			defer a.Close()
			fmt.Printf("database ready (%s, schema v%d)\n", a.DB.DriverName(), a.SchemaVersion)
			return nil
		},
	}
	cmd.Flags().BoolVar(&force, "force", false, "overwrite an existing config")
	return cmd
}

func caseCmd() *cobra.Command {
	c := &cobra.Command{Use: "case", Short: "Manage cases"}
	c.AddCommand(caseCreateCmd())
	c.AddCommand(caseShowCmd())
	c.AddCommand(caseListCmd())
	c.AddCommand(caseExecCmd())
	c.AddCommand(caseAuditCmd())
	return c
}

func caseCreateCmd() *cobra.Command {
	var in engine.CreateCaseInput
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Register a case for a client",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine, caller workflow.Caller) error {
				agg, err := e.CreateCase(ctx, in, caller)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(agg)
				}
				fmt.Printf("%s created (%s) for %s\n", agg.Case.Code, agg.Case.ID, agg.Client.DisplayName())
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&in.Client.DocumentType, "doc-type", "DNI", "client document type")
	cmd.Flags().StringVar(&in.Client.DocumentNumber, "doc", "", "client document number")
	cmd.Flags().StringVar(&in.Client.FirstNames, "first-names", "", "client first names")
	cmd.Flags().StringVar(&in.Client.LastNames, "last-names", "", "client last names")
	cmd.Flags().StringVar(&in.Client.Phone, "phone", "", "client phone")
	cmd.Flags().StringVar(&in.Client.Email, "email", "", "client email")
	cmd.Flags().StringVar(&in.ServiceID, "service", "", "service id")
	cmd.Flags().StringVar(&in.PromoterID, "promoter-id", "", "existing promoter id")
	cmd.Flags().StringVar(&in.AttentionType, "attention-type", "", "VIRTUAL or IN_PERSON")
	cmd.Flags().StringVar(&in.AttentionPlace, "place", "", "attention place")
	cmd.Flags().StringVar(&in.Comment, "comment", "", "comment")
	_ = cmd.MarkFlagRequired("doc")
	return cmd
}

func caseShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show <id-or-code>",
		Short: "Show a case with its state and the actions you may perform",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine, caller workflow.Caller) error {
				v, err := e.GetCase(ctx, args[0], caller)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(v)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendRow(table.Row{"Code", v.Case.Code})
				tw.AppendRow(table.Row{"ID", v.Case.ID})
				tw.AppendRow(table.Row{"Client", v.Client.DisplayName()})
				tw.AppendRow(table.Row{"State", v.State})
				tw.AppendRow(table.Row{"Attention", v.Case.AttentionStatus})
				tw.AppendRow(table.Row{"Payment", v.Case.PaymentStatus})
				if m := v.Current(domain.RoleManager); m != nil {
					tw.AppendRow(table.Row{"Manager", m.PersonName})
				}
				if s := v.Current(domain.RoleSpecialist); s != nil {
					tw.AppendRow(table.Row{"Specialist", s.PersonName})
				}
				if v.Case.TariffAmount != nil {
					tw.AppendRow(table.Row{"Tariff", v.Case.TariffAmount.StringFixed(2) + " " + strPtrValue(v.Case.TariffCurrency)})
				}
				tw.AppendRow(table.Row{"Payments", len(v.Payments)})
				tw.AppendRow(table.Row{"Allowed", actionList(v.Allowed)})
				tw.Render()
				return nil
			})
		},
	}
}

func caseListCmd() *cobra.Command {
	var opts engine.ListOptions
	var state string
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List cases newest first",
		RunE: func(cmd *cobra.Command, args []string) error {
			if state != "" {
				st, err := domain.ParseState(state)
				if err != nil {
					return err
				}
				opts.State = st
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine, caller workflow.Caller) error {
				items, err := e.ListCases(ctx, caller, opts)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(items)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"Code", "Client", "State", "Created"})
				for _, it := range items {
					tw.AppendRow(table.Row{it.Code, it.ClientName, it.State, it.CreatedAt})
				}
				tw.Render()
				if opts.Limit > 0 && len(items) == opts.Limit {
					fmt.Printf("next: --cursor '%s'\n", engine.Cursor(items[len(items)-1]))
				}
				return nil
			})
		},
	}
	cmd.Flags().StringVarP(&opts.Query, "query", "q", "", "search code or client")
	cmd.Flags().StringVar(&state, "state", "", "operational state filter")
	cmd.Flags().BoolVar(&opts.Mine, "mine", false, "only cases that belong to the actor")
	cmd.Flags().IntVar(&opts.Limit, "limit", 50, "page size")
	cmd.Flags().StringVar(&opts.Cursor, "cursor", "", "continue after this cursor")
	return cmd
}

func caseExecCmd() *cobra.Command {
	var payload, payloadFile string
	cmd := &cobra.Command{
		Use:   "exec <case-id> <ACTION>",
		Short: "Execute a workflow action",
		Long: `Executes one action. --payload carries the action's JSON fields, e.g.
  cl case exec <id> ASSIGN_MANAGER --payload '{"person_id":"..."}'
  cl case exec <id> OVERRIDE --payload '{"justification":"...","action":"EDIT_DATA","payload":{"comment":"..."}}'`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			action, err := domain.ParseAction(args[1])
			if err != nil {
				return err
			}
			raw := []byte(payload)
			if payloadFile != "" {
				if raw, err = os.ReadFile(payloadFile); err != nil {
					return err
				}
			}
			command, err := workflow.DecodeCommand(action, raw)
			if err != nil {
				return err
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine, caller workflow.Caller) error {
				res, err := e.Execute(ctx, args[0], caller, command)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(res)
				}
				fmt.Printf("%s: %s -> %s (%d audit entries)\n", action, res.Before, res.After, len(res.Entries))
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&payload, "payload", "", "action payload as JSON")
	cmd.Flags().StringVar(&payloadFile, "payload-file", "", "read the payload from a file")
	return cmd
}

func caseAuditCmd() *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "audit <case-id>",
		Short: "Show the audit trail, newest first",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine, _ workflow.Caller) error {
				entries, err := e.AuditTrail(ctx, args[0], limit)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(entries)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"Seq", "At", "Field", "Old", "New", "Actor", "Comment"})
				for _, en := range entries {
					tw.AppendRow(table.Row{en.Seq, en.At, en.Field, strPtrValue(en.OldValue), strPtrValue(en.NewValue), en.ActorID, strPtrValue(en.Comment)})
				}
				tw.Render()
				return nil
			})
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 0, "max entries")
	return cmd
}

func staffCmd() *cobra.Command {
	c := &cobra.Command{Use: "staff", Short: "Manage operators, managers and specialists"}
	c.AddCommand(staffAddCmd())
	c.AddCommand(staffSetActiveCmd("deactivate", false))
	c.AddCommand(staffSetActiveCmd("activate", true))
	c.AddCommand(staffListCmd())
	return c
}

func staffAddCmd() *cobra.Command {
	var in engine.StaffInput
	cmd := &cobra.Command{
		Use:   "add",
		Short: "Enable a person for a staff role",
		RunE: func(cmd *cobra.Command, args []string) error {
			in.Role = strings.ToUpper(in.Role)
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine, caller workflow.Caller) error {
				s, err := e.RegisterStaff(ctx, in, caller)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(s)
				}
				fmt.Printf("%s is %s (person %s)\n", s.Name, s.Role, s.PersonID)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&in.Person.DocumentType, "doc-type", "DNI", "document type")
	cmd.Flags().StringVar(&in.Person.DocumentNumber, "doc", "", "document number")
	cmd.Flags().StringVar(&in.Person.FirstNames, "first-names", "", "first names")
	cmd.Flags().StringVar(&in.Person.LastNames, "last-names", "", "last names")
	cmd.Flags().StringVar(&in.Person.Email, "email", "", "email")
	cmd.Flags().StringVar(&in.Role, "role", "", "OPERATOR, MANAGER or SPECIALIST")
	_ = cmd.MarkFlagRequired("doc")
	_ = cmd.MarkFlagRequired("role")
	return cmd
}

func staffSetActiveCmd(use string, active bool) *cobra.Command {
	var role string
	cmd := &cobra.Command{
		Use:   use + " <person-id>",
		Short: strings.ToUpper(use[:1]) + use[1:] + " a staff role",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			r, err := domain.ParseRole(role)
			if err != nil {
				return err
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine, caller workflow.Caller) error {
				if err := e.SetStaffActive(ctx, args[0], r, active, caller); err != nil {
					return err
				}
				fmt.Printf("%s %s active=%t\n", args[0], r, active)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&role, "role", "", "staff role")
	_ = cmd.MarkFlagRequired("role")
	return cmd
}

func staffListCmd() *cobra.Command {
	var role string
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List staff",
		RunE: func(cmd *cobra.Command, args []string) error {
			var r domain.Role
			if role != "" {
				parsed, err := domain.ParseRole(role)
				if err != nil {
					return err
				}
				r = parsed
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine, _ workflow.Caller) error {
				items, err := e.ListStaff(ctx, r)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(items)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"Person", "Name", "Role", "Active"})
				for _, s := range items {
					tw.AppendRow(table.Row{s.PersonID, s.Name, s.Role, s.Active})
				}
				tw.Render()
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&role, "role", "", "role filter")
	return cmd
}

func serviceCmd() *cobra.Command {
	c := &cobra.Command{Use: "service", Short: "Service catalog"}
	c.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List services and tariffs",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine, _ workflow.Caller) error {
				items, err := e.ListServices(ctx)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(items)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"ID", "Description", "Tariff"})
				for _, s := range items {
					tw.AppendRow(table.Row{s.ID, s.Description, s.TariffAmount.StringFixed(2) + " " + s.TariffCurrency})
				}
				tw.Render()
				return nil
			})
		},
	})
	return c
}

func promoterCmd() *cobra.Command {
	c := &cobra.Command{Use: "promoter", Short: "Manage promoters"}

	var in engine.PromoterInput
	var person engine.PersonInput
	add := &cobra.Command{
		Use:   "add",
		Short: "Register a promoter",
		RunE: func(cmd *cobra.Command, args []string) error {
			in.Kind = strings.ToUpper(in.Kind)
			if in.Kind == string(domain.PromoterPerson) {
				in.Person = &person
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine, caller workflow.Caller) error {
				p, err := e.CreatePromoter(ctx, in, caller)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(p)
				}
				fmt.Printf("promoter %s (%s) %s\n", p.ID, p.Kind, p.Name)
				return nil
			})
		},
	}
	add.Flags().StringVar(&in.Kind, "kind", "", "PERSON, COMPANY or OTHER")
	add.Flags().StringVar(&person.DocumentType, "doc-type", "DNI", "document type (PERSON)")
	add.Flags().StringVar(&person.DocumentNumber, "doc", "", "document number (PERSON)")
	add.Flags().StringVar(&person.FirstNames, "first-names", "", "first names (PERSON)")
	add.Flags().StringVar(&person.LastNames, "last-names", "", "last names (PERSON)")
	add.Flags().StringVar(&in.BusinessName, "business-name", "", "business name (COMPANY)")
	add.Flags().StringVar(&in.OtherName, "name", "", "name (OTHER)")
	add.Flags().StringVar(&in.RUC, "ruc", "", "tax id")
	add.Flags().StringVar(&in.Email, "email", "", "email")
	add.Flags().StringVar(&in.Phone, "phone", "", "phone")
	add.Flags().StringVar(&in.Source, "source", "", "how the promoter was found")
	add.Flags().StringVar(&in.Comment, "comment", "", "comment")
	_ = add.MarkFlagRequired("kind")

	var kind string
	list := &cobra.Command{
		Use:   "list",
		Short: "List promoters",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine, _ workflow.Caller) error {
				items, err := e.ListPromoters(ctx, domain.PromoterKind(strings.ToUpper(kind)))
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(items)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"ID", "Kind", "Name", "Source"})
				for _, p := range items {
					tw.AppendRow(table.Row{p.ID, p.Kind, p.Name, strPtrValue(p.Source)})
				}
				tw.Render()
				return nil
			})
		},
	}
	list.Flags().StringVar(&kind, "kind", "", "kind filter")

	c.AddCommand(add, list)
	return c
}

func policyCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "policy",
		Short: "Show the actions each role may perform per state",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine, caller workflow.Caller) error {
				rows, err := e.Policy(caller)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(rows)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"Role", "State", "Actions"})
				for _, r := range rows {
					tw.AppendRow(table.Row{r.Role, r.State, actionList(r.Actions)})
				}
				tw.Render()
				return nil
			})
		},
	}
}

func tokenCmd() *cobra.Command {
	var subject, roles string
	var ttl time.Duration
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Mint an API bearer token",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.LoadOptional(viper.GetString("workspace"))
			if err != nil {
				return err
			}
			tok, err := server.SignToken(authConfig(cfg), subject, splitRoles(roles), ttl, time.Now())
			if err != nil {
				return err
			}
			fmt.Println(tok)
			return nil
		},
	}
	cmd.Flags().StringVar(&subject, "subject", "", "person id carried in the token")
	cmd.Flags().StringVar(&roles, "token-roles", "", "comma separated roles carried in the token")
	cmd.Flags().DurationVar(&ttl, "ttl", 12*time.Hour, "token lifetime")
	_ = cmd.MarkFlagRequired("subject")
	_ = cmd.MarkFlagRequired("token-roles")
	return cmd
}

func apiKeyCmd() *cobra.Command {
	c := &cobra.Command{Use: "apikey", Short: "Manage API keys"}

	var personID, name, roles string
	issue := &cobra.Command{
		Use:   "issue",
		Short: "Issue an API key; it is printed once",
		RunE: func(cmd *cobra.Command, args []string) error {
			parsed, err := auth.ParseRoles(splitRoles(roles))
			if err != nil {
				return err
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine, caller workflow.Caller) error {
				key, secret, err := e.IssueAPIKey(ctx, personID, name, parsed, caller)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(map[string]any{"id": key.ID, "key": secret})
				}
				fmt.Printf("key %s for %s (%s):\n%s\n", key.ID, key.PersonID, key.Roles, secret)
				return nil
			})
		},
	}
	issue.Flags().StringVar(&personID, "person-id", "", "person the key acts as")
	issue.Flags().StringVar(&name, "name", "", "label")
	issue.Flags().StringVar(&roles, "key-roles", "", "comma separated roles carried by the key")
	_ = issue.MarkFlagRequired("person-id")
	_ = issue.MarkFlagRequired("key-roles")

	var listPerson string
	list := &cobra.Command{
		Use:   "list",
		Short: "List API keys",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine, _ workflow.Caller) error {
				keys, err := e.ListAPIKeys(ctx, listPerson)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(keys)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"ID", "Person", "Name", "Roles", "Created", "Revoked"})
				for _, k := range keys {
					tw.AppendRow(table.Row{k.ID, k.PersonID, strPtrValue(k.Name), k.Roles, k.CreatedAt, strPtrValue(k.RevokedAt)})
				}
				tw.Render()
				return nil
			})
		},
	}
	list.Flags().StringVar(&listPerson, "person-id", "", "person filter")

	revoke := &cobra.Command{
		Use:   "revoke <key-id>",
		Short: "Revoke an API key",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine, caller workflow.Caller) error {
				return e.RevokeAPIKey(ctx, args[0], caller)
			})
		},
	}

	c.AddCommand(issue, list, revoke)
	return c
}

func serveCmd() *cobra.Command {
	var addr, basePath string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start HTTP API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := app.Open(cmd.Context(), viper.GetString("workspace"), viper.GetBool("dev"))
			if err != nil {
				return err
			}
			defer a.Close()
			if addr == "" {
				addr = a.Config.Server.Addr
			}
			if basePath == "" {
				basePath = a.Config.Server.BasePath
			}
			authCfg := authConfig(a.Config)
			if authCfg.JWTSecret == "" {
				return fmt.Errorf("CASELINE_JWT_SECRET or auth.jwt.secret is required for bearer auth")
			}
			handler, err := server.New(server.Config{Engine: a.Engine, BasePath: basePath, Auth: authCfg, Log: a.Log})
			if err != nil {
				return err
			}
			srv := &http.Server{Addr: addr, Handler: handler, ReadHeaderTimeout: 10 * time.Second}
			go func() {
				<-cmd.Context().Done()
				ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				srv.Shutdown(ctx)
			}()
			a.Log.Info("serving caseline api", zap.String("addr", addr), zap.String("base_path", basePath))
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "listen address (default from config)")
	cmd.Flags().StringVar(&basePath, "base-path", "", "API base path (default from config)")
	return cmd
}

func authConfig(cfg *config.Config) server.AuthConfig {
	secret := viper.GetString("jwt-secret")
	if secret == "" {
		secret = cfg.Auth.JWT.Secret
	}
	return server.AuthConfig{JWTSecret: secret, Issuer: cfg.Auth.JWT.Issuer, Audience: cfg.Auth.JWT.Audience}
}

func withEngine(ctx context.Context, fn func(context.Context, engine.Engine, workflow.Caller) error) error {
	roles, err := auth.ParseRoles(splitRoles(viper.GetString("roles")))
	if err != nil {
		return err
	}
	caller := workflow.Caller{PersonID: viper.GetString("actor-id"), Roles: roles}
	a, err := app.Open(ctx, viper.GetString("workspace"), viper.GetBool("dev"))
	if err != nil {
		return err
	}
	defer a.Close()
	return fn(ctx, a.Engine, caller)
}

func splitRoles(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func actionList(actions []domain.Action) string {
	if len(actions) == 0 {
		return "-"
	}
	parts := make([]string, len(actions))
	for i, a := range actions {
		parts[i] = string(a)
	}
	return strings.Join(parts, ", ")
}

func printJSON(v any) error {
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(b))
	return nil
}

func strPtrValue(ptr *string) string {
	if ptr == nil {
		return ""
	}
	return *ptr
}
