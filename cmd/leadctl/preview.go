package main

import (
	"encoding/json"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/leadflow/backend/internal/models"
	"github.com/leadflow/backend/internal/service"
)

var previewCmd = &cobra.Command{
	Use:   "preview",
	Short: "Show how a lead would be matched without assigning it",
	Example: `  leadctl preview --lead acme --skill sql:critical --skill python
  leadctl preview --lead acme --skill go:high --exclude "Alice Smith"`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		lead, _ := cmd.Flags().GetString("lead")
		skills, _ := cmd.Flags().GetStringArray("skill")
		excludes, _ := cmd.Flags().GetStringArray("exclude")

		reqs, err := parseRequirements(skills)
		if err != nil {
			return err
		}
		refs := make([]models.ConsultantRef, 0, len(excludes))
		for _, e := range excludes {
			refs = append(refs, models.RefFromString(e))
		}

		store, err := openStore(ctx, cfg)
		if err != nil {
			return err
		}
		defer store.Close()

		all, err := store.ListConsultants(ctx)
		if err != nil {
			return eris.Wrap(err, "list consultants")
		}
		res, err := newEngine(store).Service.Preview(ctx, all, service.SelectionRequest{
			LeadIdentifier: lead,
			Requirements:   reqs,
			Excluded:       models.NewExclusionSet(refs...),
		})
		if err != nil {
			return eris.Wrap(err, "preview")
		}

		out := map[string]any{
			"stages":    res.Stages,
			"matches":   res.Matches,
			"selection": res.Selection,
		}
		if res.Decision != nil {
			out["final"] = map[string]any{"reason_code": res.Decision.Kind, "reason_text": res.Decision.Error(), "skills": res.Decision.Skills}
		}
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(out)
	},
}

// parseRequirements reads skill[:priority] values. A missing priority means
// medium.
func parseRequirements(values []string) ([]models.SkillRequirement, error) {
	reqs := make([]models.SkillRequirement, 0, len(values))
	for _, v := range values {
		id, prio, _ := strings.Cut(v, ":")
		id = strings.TrimSpace(id)
		if id == "" {
			return nil, eris.Errorf("invalid --skill %q", v)
		}
		p := models.PriorityMedium
		if prio != "" {
			p = models.Priority(strings.ToLower(strings.TrimSpace(prio)))
			if !p.Valid() {
				return nil, eris.Errorf("invalid priority %q for skill %s", prio, id)
			}
		}
		reqs = append(reqs, models.SkillRequirement{SkillID: id, Priority: p})
	}
	return reqs, nil
}

func init() {
	f := previewCmd.Flags()
	f.String("lead", "preview", "Lead identifier used for tie-breaking")
	f.StringArray("skill", nil, "Required skill as id[:priority], repeatable")
	f.StringArray("exclude", nil, "Consultant id or name to exclude, repeatable")
	rootCmd.AddCommand(previewCmd)
}
