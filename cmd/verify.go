/*
Copyright © 2025 NAME HERE <EMAIL ADDRESS>

*/
package cmd

import (
	"context"
	"fmt"
	"log"

	"github.com/cioer/DoAn-sub006/internal/config"
	"github.com/cioer/DoAn-sub006/internal/container"
	"github.com/spf13/cobra"
)

// verifyCmd represents the verify command
var verifyCmd = &cobra.Command{
	Use:   "verify [proposal-id]",
	Short: "Verify proposal state against the workflow log",
	Long: `Replay each proposal's workflow log and compare the replayed state
with the stored state. With --repair, mismatched proposals are reset
to the replayed state.

Without arguments all proposals are checked; pass a proposal ID to
check a single one.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		// 1. 加载配置
		configPath, _ := cmd.Flags().GetString("config")
		cfg, err := config.Load(configPath)
		if err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}

		// 2. 初始化容器
		ctr, err := container.NewContainer(cfg)
		if err != nil {
			return fmt.Errorf("failed to initialize container: %w", err)
		}
		defer ctr.Close()

		repair, _ := cmd.Flags().GetBool("repair")
		ctx := context.Background()

		// 3. 执行校验
		if len(args) == 1 {
			issue, err := ctr.VerifyService().VerifyProposal(ctx, args[0], repair)
			if err != nil {
				return fmt.Errorf("failed to verify proposal: %w", err)
			}
			if issue == nil {
				log.Printf("Proposal %s is consistent", args[0])
				return nil
			}
			log.Printf("Proposal %s mismatch: stored=%s replayed=%s repaired=%v",
				issue.ProposalID, issue.StoredState, issue.ReplayedState, issue.Repaired)
			return nil
		}

		report, err := ctr.VerifyService().VerifyAll(ctx, repair)
		if err != nil {
			return fmt.Errorf("failed to verify proposals: %w", err)
		}

		log.Printf("Checked %d proposals, %d issues found", report.Checked, len(report.Issues))
		for _, issue := range report.Issues {
			log.Printf("Proposal %s mismatch: stored=%s replayed=%s repaired=%v",
				issue.ProposalID, issue.StoredState, issue.ReplayedState, issue.Repaired)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(verifyCmd)

	verifyCmd.Flags().String("config", "", "Config file path (default: config.yaml)")
	verifyCmd.Flags().Bool("repair", false, "Reset mismatched proposals to the replayed state")
}
