package cli

import (
	"fmt"
	"sort"
	"strconv"
	"text/tabwriter"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"unigo-console/internal/api"
	"unigo-console/internal/model"
	"unigo-console/internal/verification"
)

func (a *app) table() *tabwriter.Writer {
	return tabwriter.NewWriter(a.out, 0, 4, 2, ' ', 0)
}

func idArg(args []string) (int, error) {
	id, err := strconv.Atoi(args[0])
	if err != nil {
		return 0, errors.Errorf("invalid id %q", args[0])
	}
	return id, nil
}

// withClient wraps fn with the signed-in connection admin commands run on.
func (a *app) withClient(fn func(cmd *cobra.Command, args []string, client *api.Client) error) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		c, _, err := a.signedIn(cmd.Context())
		if err != nil {
			return err
		}
		defer c.Close()
		return fn(cmd, args, c.client)
	}
}

// banner turns a request failure into the message an admin would see.
func banner(err error) error {
	if err == nil {
		return nil
	}
	return errors.New(api.UserMessage(err))
}

func (a *app) usersCommand() *cobra.Command {
	cmd := &cobra.Command{Use: "users", Short: "inspect user accounts"}

	var f model.UserFilter
	var role, status string
	list := &cobra.Command{
		Use:   "list",
		Short: "list accounts",
		RunE: func(cmd *cobra.Command, args []string) error {
			c, _, err := a.signedIn(cmd.Context())
			if err != nil {
				return err
			}
			defer c.Close()

			f.Role = model.Role(role)
			f.Status = model.AccountStatus(status)
			res, err := c.client.ListUsers(cmd.Context(), f)
			if err != nil {
				return banner(err)
			}
			w := a.table()
			fmt.Fprintln(w, "ID\tNAME\tEMAIL\tROLE\tSTATUS")
			for _, u := range res.Users {
				fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%s\n", u.ID, u.FullName(), u.Email, u.Role, u.Status)
			}
			fmt.Fprintf(w, "page %d, %d total\n", res.Page.Page, res.Total)
			return w.Flush()
		},
	}
	list.Flags().StringVar(&role, "role", "", "filter by role")
	list.Flags().StringVar(&status, "status", "", "filter by account status")
	list.Flags().StringVar(&f.Search, "search", "", "match name or email")
	list.Flags().IntVar(&f.Page, "page", 1, "page number")
	list.Flags().IntVar(&f.Limit, "limit", 20, "page size")

	verify := &cobra.Command{
		Use:   "verification <id>",
		Short: "show the derived document verification report",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := idArg(args)
			if err != nil {
				return err
			}
			c, _, err := a.signedIn(cmd.Context())
			if err != nil {
				return err
			}
			defer c.Close()

			u, err := c.client.GetUser(cmd.Context(), id)
			if err != nil {
				return banner(err)
			}
			rep := verification.Evaluate(u)
			w := a.table()
			fmt.Fprintf(w, "%s (%s)\n", u.FullName(), u.Role)
			fmt.Fprintln(w, "DOCUMENT\tREQUIRED\tSTATUS\tFILE")
			for _, d := range rep.Documents {
				fmt.Fprintf(w, "%s\t%t\t%s\t%s\n", d.Label, d.Required, d.Status, d.File)
			}
			fmt.Fprintf(w, "payment\t\t%s\t\n", rep.Payment)
			fmt.Fprintf(w, "aggregate\t\t%s\t\n", rep.Aggregate)
			fmt.Fprintf(w, "readiness\t\t%s\t\n", rep.Readiness)
			if u.DocumentRejectionNotes != "" {
				fmt.Fprintf(w, "notes\t\t%s\t\n", u.DocumentRejectionNotes)
			}
			return w.Flush()
		},
	}

	cmd.AddCommand(list, verify,
		a.userCreateCommand(),
		a.userUpdateCommand(),
		a.userDeleteCommand(),
		a.userStatusCommand(),
		a.userDocumentsCommand(),
		a.userVerifyDocumentsCommand(),
	)
	return cmd
}

func (a *app) userCreateCommand() *cobra.Command {
	var req model.RegisterRequest
	var role string
	cmd := &cobra.Command{
		Use:   "create",
		Short: "create an account",
		RunE: a.withClient(func(cmd *cobra.Command, args []string, client *api.Client) error {
			req.Role = model.Role(role)
			u, err := client.CreateUser(cmd.Context(), req)
			if err != nil {
				return banner(err)
			}
			fmt.Fprintf(a.out, "created user %d, %s (%s)\n", u.ID, u.Email, u.Role)
			return nil
		}),
	}
	cmd.Flags().StringVar(&req.Email, "email", "", "account email")
	cmd.Flags().StringVar(&req.Password, "password", "", "initial password")
	cmd.Flags().StringVar(&req.FirstName, "first-name", "", "first name")
	cmd.Flags().StringVar(&req.LastName, "last-name", "", "last name")
	cmd.Flags().StringVar(&req.Phone, "phone", "", "phone number")
	cmd.Flags().StringVar(&role, "role", string(model.RolePassenger), "admin, driver or passenger")
	cmd.MarkFlagRequired("email")
	cmd.MarkFlagRequired("password")
	return cmd
}

func (a *app) userUpdateCommand() *cobra.Command {
	var firstName, lastName, phone, role string
	var university, district int
	cmd := &cobra.Command{
		Use:   "update <id>",
		Short: "edit account details; only the given flags change",
		Args:  cobra.ExactArgs(1),
		RunE: a.withClient(func(cmd *cobra.Command, args []string, client *api.Client) error {
			id, err := idArg(args)
			if err != nil {
				return err
			}
			var upd api.UserUpdate
			flags := cmd.Flags()
			if flags.Changed("first-name") {
				upd.FirstName = &firstName
			}
			if flags.Changed("last-name") {
				upd.LastName = &lastName
			}
			if flags.Changed("phone") {
				upd.Phone = &phone
			}
			if flags.Changed("role") {
				r := model.Role(role)
				upd.Role = &r
			}
			if flags.Changed("university") {
				upd.UniversityID = &university
			}
			if flags.Changed("district") {
				upd.DistrictID = &district
			}
			u, err := client.UpdateUser(cmd.Context(), id, upd)
			if err != nil {
				return banner(err)
			}
			fmt.Fprintf(a.out, "updated user %d, %s (%s)\n", u.ID, u.FullName(), u.Role)
			return nil
		}),
	}
	cmd.Flags().StringVar(&firstName, "first-name", "", "first name")
	cmd.Flags().StringVar(&lastName, "last-name", "", "last name")
	cmd.Flags().StringVar(&phone, "phone", "", "phone number")
	cmd.Flags().StringVar(&role, "role", "", "admin, driver or passenger")
	cmd.Flags().IntVar(&university, "university", 0, "university id")
	cmd.Flags().IntVar(&district, "district", 0, "district id")
	return cmd
}

func (a *app) userDeleteCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "delete <id>",
		Short: "delete an account",
		Args:  cobra.ExactArgs(1),
		RunE: a.withClient(func(cmd *cobra.Command, args []string, client *api.Client) error {
			id, err := idArg(args)
			if err != nil {
				return err
			}
			if err := client.DeleteUser(cmd.Context(), id); err != nil {
				return banner(err)
			}
			fmt.Fprintf(a.out, "deleted user %d\n", id)
			return nil
		}),
	}
}

var accountStatuses = []model.AccountStatus{
	model.StatusActive,
	model.StatusPendingVerification,
	model.StatusPendingPayment,
	model.StatusSuspended,
	model.StatusBanned,
}

func (a *app) userStatusCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "status <id> <status>",
		Short: "set the account status",
		Args:  cobra.ExactArgs(2),
		RunE: a.withClient(func(cmd *cobra.Command, args []string, client *api.Client) error {
			id, err := idArg(args)
			if err != nil {
				return err
			}
			status := model.AccountStatus(args[1])
			known := false
			for _, s := range accountStatuses {
				known = known || s == status
			}
			if !known {
				return errors.Errorf("unknown status %q", args[1])
			}
			if err := client.UpdateUserStatus(cmd.Context(), id, status); err != nil {
				return banner(err)
			}
			fmt.Fprintf(a.out, "user %d is now %s\n", id, status)
			return nil
		}),
	}
}

func (a *app) userDocumentsCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "documents <id>",
		Short: "list uploaded documents with their download links",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := idArg(args)
			if err != nil {
				return err
			}
			c, _, err := a.signedIn(cmd.Context())
			if err != nil {
				return err
			}
			defer c.Close()

			docs, err := c.client.UserDocuments(cmd.Context(), id)
			if err != nil {
				return banner(err)
			}
			keys := make([]string, 0, len(docs))
			for k := range docs {
				keys = append(keys, k)
			}
			sort.Strings(keys)
			w := a.table()
			fmt.Fprintln(w, "DOCUMENT\tURL")
			for _, k := range keys {
				fmt.Fprintf(w, "%s\t%s\n", k, c.client.FileURL(docs[k]))
			}
			return w.Flush()
		},
	}
}

func (a *app) userVerifyDocumentsCommand() *cobra.Command {
	var reject bool
	var notes string
	cmd := &cobra.Command{
		Use:   "verify-documents <id>",
		Short: "approve or reject every document of an account at once",
		Args:  cobra.ExactArgs(1),
		RunE: a.withClient(func(cmd *cobra.Command, args []string, client *api.Client) error {
			id, err := idArg(args)
			if err != nil {
				return err
			}
			d := api.Decision{Status: model.DecisionApproved, Notes: notes}
			if reject {
				d.Status = model.DecisionRejected
			}
			if err := client.VerifyDocuments(cmd.Context(), id, d); err != nil {
				return banner(err)
			}
			fmt.Fprintf(a.out, "documents of user %d %s\n", id, d.Status)
			return nil
		}),
	}
	cmd.Flags().BoolVar(&reject, "reject", false, "reject instead of approve")
	cmd.Flags().StringVar(&notes, "notes", "", "rejection notes shown to the user")
	return cmd
}

func (a *app) rechargeCommand() *cobra.Command {
	cmd := &cobra.Command{Use: "recharge", Short: "moderate wallet recharge requests"}

	var status string
	list := &cobra.Command{
		Use:   "list",
		Short: "list recharge requests",
		RunE: func(cmd *cobra.Command, args []string) error {
			c, _, err := a.signedIn(cmd.Context())
			if err != nil {
				return err
			}
			defer c.Close()

			reqs, err := c.client.RechargeRequests(cmd.Context(), status)
			if err != nil {
				return banner(err)
			}
			w := a.table()
			fmt.Fprintln(w, "ID\tUSER\tAMOUNT\tSTATUS\tCREATED")
			for _, r := range reqs {
				fmt.Fprintf(w, "%d\t%d\t%.0f\t%s\t%s\n", r.ID, r.UserID, r.Amount, r.Status, r.CreatedAt.Format("2006-01-02 15:04"))
			}
			return w.Flush()
		},
	}
	list.Flags().StringVar(&status, "status", model.RechargePending, "pending, approved or rejected; empty for all")

	approve := &cobra.Command{
		Use:   "approve <id>",
		Short: "approve a pending request",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := idArg(args)
			if err != nil {
				return err
			}
			c, _, err := a.signedIn(cmd.Context())
			if err != nil {
				return err
			}
			defer c.Close()
			return banner(c.client.ApproveRecharge(cmd.Context(), id))
		},
	}

	var reason string
	reject := &cobra.Command{
		Use:   "reject <id>",
		Short: "reject a pending request",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := idArg(args)
			if err != nil {
				return err
			}
			c, _, err := a.signedIn(cmd.Context())
			if err != nil {
				return err
			}
			defer c.Close()
			return banner(c.client.RejectRecharge(cmd.Context(), id, reason))
		},
	}
	reject.Flags().StringVar(&reason, "reason", "", "reason shown to the user")

	cmd.AddCommand(list, approve, reject)
	return cmd
}
