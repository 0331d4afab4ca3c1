package syncengine

import (
	"os"

	"github.com/jakekausler/stagework/internal/frontmatter"
	"github.com/jakekausler/stagework/internal/workitem"
)

// writeBackStage rewrites a stage file's frontmatter block in place,
// preserving the body byte-for-byte, per §4.B step 7. A missing file is
// returned as an os.IsNotExist error for the caller to tolerate silently.
func writeBackStage(st workitem.Stage) error {
	raw, err := os.ReadFile(st.FilePath)
	if err != nil {
		return err
	}
	_, body, err := frontmatter.Split(string(raw))
	if err != nil {
		return err
	}
	data, err := encodeStageFrontmatter(st)
	if err != nil {
		return err
	}
	out := frontmatter.Join(data, body)
	return os.WriteFile(st.FilePath, []byte(out), 0644)
}

// WriteBackTicketStatus rewrites just the status field of a ticket file,
// used by the exit gate when a ticket completes (§4.F.1 step 3).
func WriteBackTicketStatus(t workitem.Ticket, newStatus string) error {
	raw, err := os.ReadFile(t.FilePath)
	if err != nil {
		return err
	}
	data, body, err := frontmatter.Split(string(raw))
	if err != nil {
		return err
	}
	updated, err := setStatusField(data, newStatus)
	if err != nil {
		return err
	}
	return os.WriteFile(t.FilePath, []byte(frontmatter.Join(updated, body)), 0644)
}

// WriteBackEpicStatus rewrites just the status field of an epic file.
func WriteBackEpicStatus(e workitem.Epic, newStatus string) error {
	raw, err := os.ReadFile(e.FilePath)
	if err != nil {
		return err
	}
	data, body, err := frontmatter.Split(string(raw))
	if err != nil {
		return err
	}
	updated, err := setStatusField(data, newStatus)
	if err != nil {
		return err
	}
	return os.WriteFile(e.FilePath, []byte(frontmatter.Join(updated, body)), 0644)
}

// WriteBackStageStatus rewrites just the status field of any stage file,
// used for onboarding (§4.E.3.c) and resolver writes (§4.F.2).
func WriteBackStageStatus(st workitem.Stage, newStatus string) error {
	raw, err := os.ReadFile(st.FilePath)
	if err != nil {
		return err
	}
	data, body, err := frontmatter.Split(string(raw))
	if err != nil {
		return err
	}
	updated, err := setStatusField(data, newStatus)
	if err != nil {
		return err
	}
	return os.WriteFile(st.FilePath, []byte(frontmatter.Join(updated, body)), 0644)
}
