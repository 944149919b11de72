package main

import (
	"encoding/json"
	"fmt"
	"sort"

	"github.com/spf13/cobra"

	"pegpool/internal/storage"
)

type journalSummary struct {
	Path   string         `json:"path"`
	Events int            `json:"events"`
	First  uint64         `json:"first_timestamp,omitempty"`
	Last   uint64         `json:"last_timestamp,omitempty"`
	Counts map[string]int `json:"counts"`
}

func runJournal(cmd *cobra.Command, _ []string) error {
	path, _ := cmd.Flags().GetString("events-out")
	name, _ := cmd.Flags().GetString("name")
	tail, _ := cmd.Flags().GetInt("tail")
	if path == "" {
		return fmt.Errorf("events-out is required")
	}

	entries, err := storage.ReadJournal(path)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if name != "" || tail > 0 {
		var picked []storage.JournalEntry
		for _, entry := range entries {
			if name == "" || entry.Name == name {
				picked = append(picked, entry)
			}
		}
		if tail > 0 && len(picked) > tail {
			picked = picked[len(picked)-tail:]
		}
		enc := json.NewEncoder(out)
		for _, entry := range picked {
			if err := enc.Encode(entry); err != nil {
				return err
			}
		}
		return nil
	}

	summary := journalSummary{Path: path, Events: len(entries), Counts: make(map[string]int)}
	for _, entry := range entries {
		summary.Counts[entry.Name]++
	}
	if len(entries) > 0 {
		stamps := make([]uint64, 0, len(entries))
		for _, entry := range entries {
			stamps = append(stamps, entry.Timestamp)
		}
		sort.Slice(stamps, func(i, j int) bool { return stamps[i] < stamps[j] })
		summary.First = stamps[0]
		summary.Last = stamps[len(stamps)-1]
	}
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(summary)
}
