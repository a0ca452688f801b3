package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"sfcmove/internal/db"
	"sfcmove/internal/session"
)

func newRegisterCmd(a *app) *cobra.Command {
	var (
		name, email string
		check       bool
		signOut     bool
	)
	cmd := &cobra.Command{
		Use:   "register",
		Short: "Register the name other riders see, or check registration",
		RunE: func(cmd *cobra.Command, _ []string) error {
			out := cmd.OutOrStdout()
			if signOut {
				if err := session.SignOut(a.store); err != nil {
					return err
				}
				fmt.Fprintln(out, "signed out; a new anonymous id is created on next use")
				return nil
			}

			sess, err := session.EnsureSignedIn(a.store)
			if err != nil {
				return err
			}
			sqlDB, err := a.openDB(cmd.Context())
			if err != nil {
				return err
			}
			defer sqlDB.Close()

			if check || name == "" {
				ok, err := db.IsRegistered(cmd.Context(), sqlDB, sess.UserID)
				if err != nil {
					return err
				}
				state := warnStyle.Render("not registered")
				if ok {
					state = okStyle.Render("registered")
				}
				fmt.Fprintf(out, "%s %s\n", sess.UserID, state)
				return nil
			}
			if err := db.RegisterUser(cmd.Context(), sqlDB, sess.UserID, email, name); err != nil {
				return err
			}
			fmt.Fprintf(out, "registered %s as %s\n", sess.UserID, name)
			return nil
		},
	}
	cmd.Flags().StringVar(&name, "name", "", "display name shown to other riders")
	cmd.Flags().StringVar(&email, "email", "", "contact email (not shown to others)")
	cmd.Flags().BoolVar(&check, "check", false, "only report whether this device is registered")
	cmd.Flags().BoolVar(&signOut, "sign-out", false, "forget this device's anonymous id")
	cmd.MarkFlagsRequiredTogether("name", "email")
	return cmd
}
