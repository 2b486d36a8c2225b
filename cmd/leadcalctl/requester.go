package main

import (
	"fmt"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"leadcal/backend/internal/service/appointments"
)

func addRequesterFlags(cmd *cobra.Command) {
	cmd.Flags().String("owner", "", "Restrict to this owner's appointments (UUID); empty means all owners")
}

// requesterFromFlags acts as an administrator unless --owner narrows the view.
func requesterFromFlags(cmd *cobra.Command) (appointments.Requester, error) {
	raw, _ := cmd.Flags().GetString("owner")
	if raw == "" {
		return appointments.Unrestricted(uuid.Nil), nil
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		return appointments.Requester{}, fmt.Errorf("--owner: %w", err)
	}
	return appointments.RestrictedTo(id), nil
}
