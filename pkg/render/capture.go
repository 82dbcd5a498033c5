package render

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/sirupsen/logrus"

	"github.com/yourusername/report-generator/pkg/model"
)

// pdfLandscape is the orientation used for every PDF report
const pdfLandscape = true

// capture produces the artifact bytes for the job's format. Cache renders
// produce none.
func (n *navigation) capture() ([]byte, error) {
	var (
		data []byte
		err  error
	)
	switch n.job.Format {
	case model.FormatCache:
		return nil, nil
	case model.FormatPDF:
		data, err = n.page.PDF(pdfLandscape)
	case model.FormatPNG:
		data, err = n.page.Screenshot()
	default:
		err = fmt.Errorf("unsupported format %q", n.job.Format)
	}
	if err != nil {
		return nil, n.fail(model.KindCapture, "", err)
	}

	n.log.WithField("bytes", len(data)).Debug("[REPORT] Captured dashboard")
	return data, nil
}

// saveDiagnostic writes a screenshot of the current page when enabled.
// Failures are logged only.
func (n *navigation) saveDiagnostic(reason string) {
	opts := n.r.opts
	if !opts.SaveScreenshots || n.page == nil {
		return
	}

	data, err := n.page.Screenshot()
	if err != nil {
		n.log.WithError(err).Warn("[REPORT] Diagnostic screenshot failed")
		return
	}
	if err := os.MkdirAll(opts.ScreenshotDir, 0o755); err != nil {
		n.log.WithError(err).Warn("[REPORT] Failed to create screenshot dir")
		return
	}

	name := fmt.Sprintf("screenshot_%s_%s_%d.png", n.job.OrgID, n.job.Dashboard.Dashboard, n.r.now().Unix())
	path := filepath.Join(opts.ScreenshotDir, filepath.Base(name))
	if err := os.WriteFile(path, data, 0o644); err != nil {
		n.log.WithError(err).Warn("[REPORT] Failed to save diagnostic screenshot")
		return
	}
	n.log.WithFields(logrus.Fields{"path": path, "reason": reason}).Info("[REPORT] Saved diagnostic screenshot")
}
