package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/voicedesk/switchboard/internal/escalation"
	"github.com/voicedesk/switchboard/internal/storage"
)

// --- ask ---

var askCmd = &cobra.Command{
	Use:   "ask <question>",
	Short: "Submit a customer question",
	Long: `Submit a customer question to the escalation engine.

A question the knowledge base can answer is answered immediately; anything
else opens a pending help request for a supervisor.

Examples:
  switchboard ask "Do you deliver on Sundays?"
  switchboard ask --name "Ada" --phone "+15550100" "What are your hours?"`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		question := strings.Join(args, " ")
		name, _ := cmd.Flags().GetString("name")
		phone, _ := cmd.Flags().GetString("phone")

		client, err := newAPIClient()
		if err != nil {
			return err
		}

		body := map[string]any{
			"question": question,
			"customerInfo": map[string]string{
				"name":  name,
				"phone": phone,
			},
		}
		resp, err := client.post(cmd.Context(), "/agent/call-received", body)
		if err != nil {
			return err
		}

		var result escalation.CallResult
		if err := decodeJSON(resp, &result); err != nil {
			return err
		}

		if result.Source == escalation.SourceKnowledgeBase {
			printSuccess("Answered from knowledge base")
			fmt.Println(result.AnswerText)
			return nil
		}

		printWarning("Escalated to a supervisor (request %s)", result.HelpRequestID)
		fmt.Println(result.AnswerText)
		return nil
	},
}

func init() {
	askCmd.Flags().String("name", "", "customer name")
	askCmd.Flags().String("phone", "", "customer phone number")
}

// --- requests ---

var requestsCmd = &cobra.Command{
	Use:   "requests",
	Short: "List help requests",
	RunE: func(cmd *cobra.Command, args []string) error {
		pendingOnly, _ := cmd.Flags().GetBool("pending")

		client, err := newAPIClient()
		if err != nil {
			return err
		}

		path := "/help-requests"
		if pendingOnly {
			path += "?status=pending"
		}
		resp, err := client.get(cmd.Context(), path)
		if err != nil {
			return err
		}

		var requests []storage.HelpRequest
		if err := decodeJSON(resp, &requests); err != nil {
			return err
		}

		if len(requests) == 0 {
			fmt.Println("No help requests found.")
			return nil
		}

		for _, r := range requests {
			question := r.Question
			if len(question) > 80 {
				question = question[:80] + "..."
			}
			fmt.Printf("%s  %-10s  %s  %s\n",
				colorize(colorCyan, r.ID[:8]),
				statusColor(r.Status),
				r.CreatedAt.Format("2006-01-02 15:04"),
				question,
			)
		}
		return nil
	},
}

func statusColor(status string) string {
	switch status {
	case storage.StatusPending:
		return colorize(colorYellow, status)
	case storage.StatusResolved:
		return colorize(colorGreen, status)
	default:
		return colorize(colorRed, status)
	}
}

func init() {
	requestsCmd.Flags().Bool("pending", false, "show only pending requests")
}

// --- respond ---

var respondCmd = &cobra.Command{
	Use:   "respond <request-id> <answer>",
	Short: "Answer a pending help request",
	Long: `Answer a pending help request as a supervisor.

The answer is relayed to the waiting customer and stored in the knowledge
base so the same question is answered directly next time.`,
	Args: cobra.MinimumNArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		id := args[0]
		answer := strings.Join(args[1:], " ")

		client, err := newAPIClient()
		if err != nil {
			return err
		}

		body := map[string]string{"supervisorResponse": answer}
		resp, err := client.post(cmd.Context(), "/help-requests/"+id+"/respond", body)
		if err != nil {
			return err
		}

		var result struct {
			HelpRequest    storage.HelpRequest    `json:"helpRequest"`
			KnowledgeEntry storage.KnowledgeEntry `json:"knowledgeEntry"`
		}
		if err := decodeJSON(resp, &result); err != nil {
			return err
		}

		printSuccess("Resolved request %s", result.HelpRequest.ID[:8])
		printSuccess("Learned answer stored as knowledge entry %s", result.KnowledgeEntry.ID[:8])
		return nil
	},
}

// --- knowledge ---

var knowledgeCmd = &cobra.Command{
	Use:   "knowledge",
	Short: "Manage learned answers",
}

var knowledgeListCmd = &cobra.Command{
	Use:   "list",
	Short: "List knowledge entries, newest first",
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}

		resp, err := client.get(cmd.Context(), "/knowledge")
		if err != nil {
			return err
		}

		var entries []storage.KnowledgeEntry
		if err := decodeJSON(resp, &entries); err != nil {
			return err
		}

		if len(entries) == 0 {
			fmt.Println("No knowledge entries found.")
			return nil
		}

		for _, e := range entries {
			fmt.Printf("\n%s  %s\n", colorize(colorCyan, e.ID[:8]), colorize(colorBold, e.QuestionText))
			answer := e.AnswerText
			if len(answer) > 200 {
				answer = answer[:200] + "..."
			}
			fmt.Printf("  %s\n", answer)
		}
		return nil
	},
}

var knowledgeDeleteCmd = &cobra.Command{
	Use:   "delete <entry-id>",
	Short: "Delete a knowledge entry",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}

		resp, err := client.delete(cmd.Context(), "/knowledge/"+args[0])
		if err != nil {
			return err
		}

		var result map[string]string
		if err := decodeJSON(resp, &result); err != nil {
			return err
		}

		printSuccess("Deleted knowledge entry %s", args[0])
		return nil
	},
}

func init() {
	knowledgeCmd.AddCommand(knowledgeListCmd)
	knowledgeCmd.AddCommand(knowledgeDeleteCmd)
}
