package coordinator

import (
	"fmt"
	"strings"
	"time"

	"github.com/meetcap/meetcap/internal/protocol"
	"github.com/meetcap/meetcap/internal/util"
)

// BuildFilename computes the artifact base name:
// {AppName}_{yyyy}-{mm}-{dd}_{hh}-{min}_{sanitizedTitle}.{ext}
// The destination folder is tracked separately and prepended at persist time.
func BuildFilename(appName, title string, at time.Time, format protocol.Format) string {
	return fmt.Sprintf("%s_%s_%s_%s.%s",
		appName,
		at.Format("2006-01-02"),
		at.Format("15-04"),
		util.SanitizeTitle(title),
		format.Extension(),
	)
}

// withExtension swaps the filename's extension for the negotiated format.
// The requested format may have degraded during the session, so the stored
// name cannot be trusted to carry the right extension.
func withExtension(filename string, format protocol.Format) string {
	if i := strings.LastIndexByte(filename, '.'); i >= 0 {
		filename = filename[:i]
	}
	return filename + "." + format.Extension()
}
