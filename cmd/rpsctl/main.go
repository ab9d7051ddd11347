// rpsctl prepares the values a host needs before creating a competition:
// an id, a salt and the commitment over the chosen hand.
package main

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"rpsserver/models"
	"rpsserver/registry"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:          "rpsctl",
		Short:        "rock-paper-scissors competition tools",
		SilenceUsage: true,
	}
	root.AddCommand(newCommitCmd(), newVerifyCmd(), newIDCmd())
	return root
}

func parseHand(s string) (models.Hand, error) {
	switch strings.ToLower(s) {
	case "rock", "r":
		return models.Rock, nil
	case "paper", "p":
		return models.Paper, nil
	case "scissors", "s":
		return models.Scissors, nil
	}
	n, err := strconv.ParseUint(s, 10, 8)
	if err != nil || !models.Hand(n).Valid() {
		return 0, fmt.Errorf("invalid hand %q, want rock|paper|scissors or 0-2", s)
	}
	return models.Hand(n), nil
}

func newCommitCmd() *cobra.Command {
	var hand, salt, id string
	cmd := &cobra.Command{
		Use:   "commit",
		Short: "compute the commitment for a hand and salt",
		RunE: func(cmd *cobra.Command, args []string) error {
			h, err := parseHand(hand)
			if err != nil {
				return err
			}
			if salt == "" {
				salt = uuid.New().String()
			}
			if id == "" {
				id = uuid.New().String()
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "id:         %s\n", id)
			fmt.Fprintf(out, "hand:       %s (%d)\n", h, h)
			fmt.Fprintf(out, "salt:       %s\n", salt)
			fmt.Fprintf(out, "commitment: %s\n", registry.Commit(h, salt).Hex())
			return nil
		},
	}
	cmd.Flags().StringVar(&hand, "hand", "", "rock, paper, scissors or 0-2")
	cmd.Flags().StringVar(&salt, "salt", "", "salt, a random uuid when empty")
	cmd.Flags().StringVar(&id, "id", "", "competition id, a random uuid when empty")
	cmd.MarkFlagRequired("hand")
	return cmd
}

func newVerifyCmd() *cobra.Command {
	var hand, salt, commitment string
	cmd := &cobra.Command{
		Use:   "verify",
		Short: "check that a hand and salt reproduce a commitment",
		RunE: func(cmd *cobra.Command, args []string) error {
			h, err := parseHand(hand)
			if err != nil {
				return err
			}
			c, err := registry.ParseCommitment(commitment)
			if err != nil {
				return err
			}
			if !c.Matches(h, salt) {
				return registry.ErrInvalidHash
			}
			fmt.Fprintln(cmd.OutOrStdout(), "ok")
			return nil
		},
	}
	cmd.Flags().StringVar(&hand, "hand", "", "rock, paper, scissors or 0-2")
	cmd.Flags().StringVar(&salt, "salt", "", "salt used for the commitment")
	cmd.Flags().StringVar(&commitment, "commitment", "", "0x prefixed keccak256 hex")
	cmd.MarkFlagRequired("hand")
	cmd.MarkFlagRequired("commitment")
	return cmd
}

func newIDCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "id",
		Short: "print a fresh competition id",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			fmt.Fprintln(cmd.OutOrStdout(), uuid.New().String())
			return nil
		},
	}
}
