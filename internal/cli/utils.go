// Package cli provides output helpers for the emaki command line.
package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/hyperjump/emaki/internal/models"
	"github.com/hyperjump/emaki/pkg/utils"
)

// OutputFormat is the format for command output.
type OutputFormat string

const (
	// OutputText is human-readable text (default).
	OutputText OutputFormat = "text"
	// OutputCompact prints one scene or story per line.
	OutputCompact OutputFormat = "compact"
	// OutputJSON is structured JSON for machine consumption.
	OutputJSON OutputFormat = "json"
)

// ParseOutputFormat returns the format named by s. Unknown names are an error.
func ParseOutputFormat(s string) (OutputFormat, error) {
	switch f := OutputFormat(strings.ToLower(strings.TrimSpace(s))); f {
	case "", OutputText:
		return OutputText, nil
	case OutputCompact, OutputJSON:
		return f, nil
	default:
		return "", fmt.Errorf("unknown output format %q (supported: text, compact, json)", s)
	}
}

const rule = "─────────────────────────────────────────────────────────"

func writeJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// WriteScenes writes a segmentation result to w in the given format.
func WriteScenes(w io.Writer, resp *models.SegmentResponse, format OutputFormat) error {
	switch format {
	case OutputJSON:
		return writeJSON(w, resp)
	case OutputCompact:
		for _, s := range resp.Scenes {
			fmt.Fprintln(w, utils.CollapseSpace(s))
		}
		return nil
	default:
		fmt.Fprintf(w, "\n%d sentences merged into %d scenes in %dms (threshold %.2f)\n\n",
			resp.Sentences, len(resp.Scenes), resp.TookMs, resp.Threshold)
		for i, s := range resp.Scenes {
			fmt.Fprintln(w, rule)
			fmt.Fprintf(w, "Scene %d\n\n%s\n\n", i+1, strings.TrimSpace(s))
		}
		return nil
	}
}

// WriteStory writes a story and its scenes to w in the given format.
func WriteStory(w io.Writer, detail *models.StoryDetail, format OutputFormat) error {
	switch format {
	case OutputJSON:
		return writeJSON(w, detail)
	case OutputCompact:
		writeStoryLine(w, detail.Story)
		for _, sc := range detail.Scenes {
			fmt.Fprintf(w, "  %d\t%s\n", sc.Index, utils.Truncate(utils.CollapseSpace(sc.Text), 80))
		}
		return nil
	default:
		story := detail.Story
		fmt.Fprintf(w, "ID: %s\n", story.ID)
		if story.Title != "" {
			fmt.Fprintf(w, "Title: %s\n", story.Title)
		}
		fmt.Fprintf(w, "Status: %s\n", story.Status)
		if story.Error != "" {
			fmt.Fprintf(w, "Error: %s\n", story.Error)
		}
		fmt.Fprintf(w, "Style: %s | Threshold: %.2f | Scenes: %d | Took: %dms\n",
			story.Style, story.Threshold, story.SceneCount, story.ElapsedMs)
		if story.OutputDir != "" {
			fmt.Fprintf(w, "Output: %s\n", story.OutputDir)
		}
		fmt.Fprintln(w)
		for _, sc := range detail.Scenes {
			fmt.Fprintln(w, rule)
			fmt.Fprintf(w, "Scene %d", sc.Index)
			if sc.ImagePath != "" {
				fmt.Fprintf(w, " | %s", sc.ImagePath)
			}
			fmt.Fprintf(w, "\n\n%s\n\n", utils.Truncate(strings.TrimSpace(sc.Text), 400))
		}
		return nil
	}
}

// WriteStories writes a page of stories to w in the given format.
func WriteStories(w io.Writer, stories []*models.Story, total int64, format OutputFormat) error {
	switch format {
	case OutputJSON:
		if stories == nil {
			stories = []*models.Story{}
		}
		return writeJSON(w, map[string]interface{}{"stories": stories, "total": total})
	case OutputCompact:
		for _, s := range stories {
			writeStoryLine(w, s)
		}
		return nil
	default:
		fmt.Fprintf(w, "\n%d stories (showing %d)\n\n", total, len(stories))
		for _, s := range stories {
			fmt.Fprintln(w, rule)
			fmt.Fprintf(w, "%s [%s] %d scenes, %s\n", s.ID, s.Status, s.SceneCount, s.Style)
			fmt.Fprintf(w, "%s\n\n", storyLabel(s))
		}
		return nil
	}
}

// WriteSceneSearch writes scene search results to w in the given format.
func WriteSceneSearch(w io.Writer, resp *models.SceneSearchResponse, format OutputFormat) error {
	switch format {
	case OutputJSON:
		return writeJSON(w, resp)
	case OutputCompact:
		for _, r := range resp.Results {
			fmt.Fprintf(w, "%s\t%d\t%.4f\t%s\n", r.StoryID, r.Index, r.Score, utils.Truncate(utils.CollapseSpace(r.Text), 80))
		}
		return nil
	default:
		fmt.Fprintf(w, "\nFound %d scenes for %q\n\n", resp.Total, resp.Query)
		for i, r := range resp.Results {
			fmt.Fprintln(w, rule)
			fmt.Fprintf(w, "Rank: %d | Score: %.4f | Story: %s | Scene: %d\n", i+1, r.Score, r.StoryID, r.Index)
			fmt.Fprintf(w, "\n%s\n\n", utils.Truncate(strings.TrimSpace(r.Text), 200))
		}
		return nil
	}
}

func writeStoryLine(w io.Writer, s *models.Story) {
	fmt.Fprintf(w, "%s\t%s\t%d\t%s\n", s.ID, s.Status, s.SceneCount, storyLabel(s))
}

// storyLabel is the title, or the first words of the content for untitled stories.
func storyLabel(s *models.Story) string {
	if s.Title != "" {
		return s.Title
	}
	return utils.TruncateWords(utils.CollapseSpace(s.Content), 8)
}
