// Package resume renders per-posting submission artifacts and manages their
// on-disk lifetime. Artifacts are transient: the orchestrator removes them
// after every attempt, successful or not.
package resume

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/applyforge/applyforge/pkg/models"
	"github.com/google/uuid"
)

// TextGenerator implements models.ResumeGenerator with a plain-text
// rendering of the profile tailored to the posting. A PDF renderer can be
// swapped in behind the same contract.
type TextGenerator struct{}

func NewTextGenerator() *TextGenerator {
	return &TextGenerator{}
}

func (g *TextGenerator) Name() string { return "text" }

func (g *TextGenerator) Generate(_ context.Context, profile *models.Profile, posting models.PostingSnapshot) ([]byte, error) {
	if profile == nil {
		return nil, fmt.Errorf("profile is required")
	}
	if profile.ResumeText == "" {
		return nil, fmt.Errorf("profile %s has no resume text", profile.UserID)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "%s\n%s\n\n", profile.FullName, profile.Email)
	fmt.Fprintf(&b, "Application for: %s at %s\n\n", posting.Title, posting.Company)

	if len(profile.Skills) > 0 {
		matched := relevantSkills(profile.Skills, posting)
		if len(matched) > 0 {
			fmt.Fprintf(&b, "Relevant skills: %s\n\n", strings.Join(matched, ", "))
		}
	}

	b.WriteString(profile.ResumeText)
	b.WriteString("\n")

	return []byte(b.String()), nil
}

// relevantSkills returns the profile skills mentioned in the posting text,
// preserving profile order.
func relevantSkills(skills []string, posting models.PostingSnapshot) []string {
	text := strings.ToLower(posting.Title + " " + posting.Description)
	var matched []string
	for _, skill := range skills {
		if strings.Contains(text, strings.ToLower(skill)) {
			matched = append(matched, skill)
		}
	}
	return matched
}

// WriteArtifact persists artifact bytes for one application under dir and
// returns the file path.
func WriteArtifact(dir string, applicationID uuid.UUID, data []byte) (string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create artifact dir: %w", err)
	}
	path := filepath.Join(dir, fmt.Sprintf("resume-%s.txt", applicationID))
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", fmt.Errorf("write artifact: %w", err)
	}
	return path, nil
}

// RemoveArtifact deletes a generated artifact. A missing file is not an
// error; cleanup runs on every exit path and may race a prior cleanup.
func RemoveArtifact(path string) error {
	if path == "" {
		return nil
	}
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove artifact: %w", err)
	}
	return nil
}

var _ models.ResumeGenerator = (*TextGenerator)(nil)
