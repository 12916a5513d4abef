package cli

import (
	"fmt"
	"mime"
	"os"
	"path/filepath"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"unigo-console/internal/api"
	"unigo-console/internal/model"
)

func (a *app) districtsCommand() *cobra.Command {
	cmd := &cobra.Command{Use: "districts", Short: "reference districts"}
	list := &cobra.Command{
		Use:   "list",
		Short: "list districts",
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := a.connect(cmd.Context())
			if err != nil {
				return err
			}
			defer c.Close()
			if _, err := c.creds.Load(cmd.Context()); err != nil {
				return err
			}

			districts, err := c.client.Districts(cmd.Context())
			if err != nil {
				return banner(err)
			}
			w := a.table()
			fmt.Fprintln(w, "ID\tNAME\tCITY")
			for _, d := range districts {
				fmt.Fprintf(w, "%d\t%s\t%s\n", d.ID, d.Name, d.City)
			}
			return w.Flush()
		},
	}

	var d model.District
	create := &cobra.Command{
		Use:   "create",
		Short: "add a district",
		RunE: a.withClient(func(cmd *cobra.Command, args []string, client *api.Client) error {
			out, err := client.CreateDistrict(cmd.Context(), d)
			if err != nil {
				return banner(err)
			}
			fmt.Fprintf(a.out, "created district %d, %s\n", out.ID, out.Name)
			return nil
		}),
	}
	create.Flags().StringVar(&d.Name, "name", "", "district name")
	create.Flags().StringVar(&d.City, "city", "", "city")
	create.MarkFlagRequired("name")

	update := &cobra.Command{
		Use:   "update <id>",
		Short: "rename a district",
		Args:  cobra.ExactArgs(1),
		RunE: a.withClient(func(cmd *cobra.Command, args []string, client *api.Client) error {
			id, err := idArg(args)
			if err != nil {
				return err
			}
			d.ID = id
			out, err := client.UpdateDistrict(cmd.Context(), d)
			if err != nil {
				return banner(err)
			}
			fmt.Fprintf(a.out, "updated district %d, %s\n", out.ID, out.Name)
			return nil
		}),
	}
	update.Flags().StringVar(&d.Name, "name", "", "district name")
	update.Flags().StringVar(&d.City, "city", "", "city")
	update.MarkFlagRequired("name")

	del := &cobra.Command{
		Use:   "delete <id>",
		Short: "remove a district",
		Args:  cobra.ExactArgs(1),
		RunE: a.withClient(func(cmd *cobra.Command, args []string, client *api.Client) error {
			id, err := idArg(args)
			if err != nil {
				return err
			}
			if err := client.DeleteDistrict(cmd.Context(), id); err != nil {
				return banner(err)
			}
			fmt.Fprintf(a.out, "deleted district %d\n", id)
			return nil
		}),
	}

	cmd.AddCommand(list, create, update, del)
	return cmd
}

// openLogo reads path into an upload, or returns nil when path is empty.
// The caller closes the returned file.
func openLogo(path string) (*api.Upload, *os.File, error) {
	if path == "" {
		return nil, nil, nil
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, nil, errors.Wrap(err, "open logo")
	}
	fi, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, nil, errors.Wrap(err, "open logo")
	}
	return &api.Upload{
		Name:        filepath.Base(path),
		ContentType: mime.TypeByExtension(filepath.Ext(path)),
		Size:        fi.Size(),
		Body:        f,
	}, f, nil
}

func (a *app) universitiesCommand() *cobra.Command {
	cmd := &cobra.Command{Use: "universities", Short: "manage partner universities"}

	list := &cobra.Command{
		Use:   "list",
		Short: "list universities",
		RunE: func(cmd *cobra.Command, args []string) error {
			c, _, err := a.signedIn(cmd.Context())
			if err != nil {
				return err
			}
			defer c.Close()

			unis, err := c.client.Universities(cmd.Context())
			if err != nil {
				return banner(err)
			}
			w := a.table()
			fmt.Fprintln(w, "ID\tNAME\tACRONYM\tDISTRICT\tLOGO")
			for _, u := range unis {
				fmt.Fprintf(w, "%d\t%s\t%s\t%d\t%s\n", u.ID, u.Name, u.Acronym, u.DistrictID, c.client.FileURL(u.Logo))
			}
			return w.Flush()
		},
	}

	var u model.University
	var logo string
	save := func(update bool) func(cmd *cobra.Command, args []string, client *api.Client) error {
		return func(cmd *cobra.Command, args []string, client *api.Client) error {
			if update {
				id, err := idArg(args)
				if err != nil {
					return err
				}
				u.ID = id
			}
			upload, f, err := openLogo(logo)
			if err != nil {
				return err
			}
			if f != nil {
				defer f.Close()
			}

			var out *model.University
			if update {
				out, err = client.UpdateUniversity(cmd.Context(), u, upload)
			} else {
				out, err = client.CreateUniversity(cmd.Context(), u, upload)
			}
			if err != nil {
				return banner(err)
			}
			verb := "created"
			if update {
				verb = "updated"
			}
			fmt.Fprintf(a.out, "%s university %d, %s\n", verb, out.ID, out.Name)
			return nil
		}
	}

	create := &cobra.Command{
		Use:   "create",
		Short: "add a university",
		RunE:  a.withClient(save(false)),
	}
	update := &cobra.Command{
		Use:   "update <id>",
		Short: "edit a university; a new logo replaces the old one",
		Args:  cobra.ExactArgs(1),
		RunE:  a.withClient(save(true)),
	}
	for _, c := range []*cobra.Command{create, update} {
		c.Flags().StringVar(&u.Name, "name", "", "university name")
		c.Flags().StringVar(&u.Acronym, "acronym", "", "short name, e.g. UCAD")
		c.Flags().IntVar(&u.DistrictID, "district", 0, "district id")
		c.Flags().StringVar(&logo, "logo", "", "path to a logo image")
		c.MarkFlagRequired("name")
	}

	del := &cobra.Command{
		Use:   "delete <id>",
		Short: "remove a university",
		Args:  cobra.ExactArgs(1),
		RunE: a.withClient(func(cmd *cobra.Command, args []string, client *api.Client) error {
			id, err := idArg(args)
			if err != nil {
				return err
			}
			if err := client.DeleteUniversity(cmd.Context(), id); err != nil {
				return banner(err)
			}
			fmt.Fprintf(a.out, "deleted university %d\n", id)
			return nil
		}),
	}

	cmd.AddCommand(list, create, update, del)
	return cmd
}

func (a *app) incidentsCommand() *cobra.Command {
	cmd := &cobra.Command{Use: "incidents", Short: "review reported incidents"}

	var status string
	list := &cobra.Command{
		Use:   "list",
		Short: "list incidents",
		RunE: a.withClient(func(cmd *cobra.Command, args []string, client *api.Client) error {
			incidents, err := client.Incidents(cmd.Context(), model.IncidentStatus(status))
			if err != nil {
				return banner(err)
			}
			w := a.table()
			fmt.Fprintln(w, "ID\tREPORTER\tREPORTED\tSTATUS\tCREATED\tDESCRIPTION")
			for _, in := range incidents {
				fmt.Fprintf(w, "%d\t%d\t%d\t%s\t%s\t%s\n",
					in.ID, in.ReporterID, in.ReportedID, in.Status, in.CreatedAt.Format("2006-01-02 15:04"), in.Description)
			}
			return w.Flush()
		}),
	}
	list.Flags().StringVar(&status, "status", string(model.IncidentOpen), "open, resolved or rejected; empty for all")

	decide := func(use, short string, to model.IncidentStatus) *cobra.Command {
		return &cobra.Command{
			Use:   use + " <id>",
			Short: short,
			Args:  cobra.ExactArgs(1),
			RunE: a.withClient(func(cmd *cobra.Command, args []string, client *api.Client) error {
				id, err := idArg(args)
				if err != nil {
					return err
				}
				if err := client.UpdateIncident(cmd.Context(), id, to); err != nil {
					return banner(err)
				}
				fmt.Fprintf(a.out, "incident %d %s\n", id, to)
				return nil
			}),
		}
	}

	del := &cobra.Command{
		Use:   "delete <id>",
		Short: "remove an incident",
		Args:  cobra.ExactArgs(1),
		RunE: a.withClient(func(cmd *cobra.Command, args []string, client *api.Client) error {
			id, err := idArg(args)
			if err != nil {
				return err
			}
			if err := client.DeleteIncident(cmd.Context(), id); err != nil {
				return banner(err)
			}
			fmt.Fprintf(a.out, "deleted incident %d\n", id)
			return nil
		}),
	}

	cmd.AddCommand(list,
		decide("resolve", "mark an incident resolved", model.IncidentResolved),
		decide("reject", "dismiss an incident", model.IncidentRejected),
		decide("reopen", "reopen an incident", model.IncidentOpen),
		del,
	)
	return cmd
}
