package journal

import (
	"time"

	"github.com/google/uuid"

	"github.com/dgnsrekt/tabkeeper/internal/tabs"
)

// PageLoad is one finished main-frame navigation.
type PageLoad struct {
	LoadID     string    `json:"load_id"`
	TabID      tabs.ID   `json:"tab_id"`
	URL        string    `json:"url"`
	Title      string    `json:"title,omitempty"`
	Security   string    `json:"security"`
	DurationMS int64     `json:"duration_ms"`
	FinishedAt time.Time `json:"finished_at"`
}

// PageLoads records finished page loads of regular tabs.
type PageLoads struct {
	w *Writer
}

func NewPageLoads(baseDir string, bufferSize, maxSizeMB int) *PageLoads {
	return &PageLoads{w: NewWriter(baseDir, "page_loads", bufferSize, maxSizeMB)}
}

// Record journals a finished load. Incognito loads are never written.
func (p *PageLoads) Record(tabID tabs.ID, incognito bool, url, title string, security tabs.SecurityState, d time.Duration) error {
	if incognito || url == "" {
		return nil
	}
	return p.w.Write(PageLoad{
		LoadID:     uuid.NewString(),
		TabID:      tabID,
		URL:        url,
		Title:      title,
		Security:   security.String(),
		DurationMS: d.Milliseconds(),
		FinishedAt: p.w.now().UTC(),
	})
}

func (p *PageLoads) Close() error { return p.w.Close() }
