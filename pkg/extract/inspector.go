package extract

import (
	"context"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/pdferret/pdferret/pkg/docmodel"
	"github.com/pdferret/pdferret/pkg/utils"
)

var pdfinfoPages = regexp.MustCompile(`(?m)^Pages:\s+(\d+)`)
var pdfinfoSize = regexp.MustCompile(`(?m)^Page size:\s+([0-9.]+) x ([0-9.]+)`)

// PopplerInspector implements the PDF capability boundary with the poppler
// and qpdf command line tools, mirroring how the office adapters shell out
// to LibreOffice.
type PopplerInspector struct{}

// PageCount reads the page count via pdfinfo.
func (PopplerInspector) PageCount(ref *docmodel.FileRef) (int, error) {
	if ref.Path == "" {
		return 0, fmt.Errorf("inspector requires a path-backed file reference")
	}
	stdout, stderr, code, err := utils.RunCommand(context.Background(), "pdfinfo", ref.Path)
	if err != nil {
		return 0, err
	}
	if code != 0 {
		return 0, docmodel.Externalf("pdfinfo exited with %d: %s", code, stderr)
	}
	m := pdfinfoPages.FindStringSubmatch(stdout)
	if m == nil {
		return 0, docmodel.Parsef("pdfinfo output contained no page count")
	}
	return strconv.Atoi(m[1])
}

// ImageSizes lists embedded images via pdfimages -list, relative to the
// first page's mediabox.
func (p PopplerInspector) ImageSizes(ref *docmodel.FileRef) ([]ImageSize, error) {
	if ref.Path == "" {
		return nil, fmt.Errorf("inspector requires a path-backed file reference")
	}
	pageW, pageH, err := p.pageSize(ref)
	if err != nil {
		return nil, err
	}
	stdout, stderr, code, err := utils.RunCommand(context.Background(), "pdfimages", "-list", ref.Path)
	if err != nil {
		return nil, err
	}
	if code != 0 {
		return nil, docmodel.Externalf("pdfimages exited with %d: %s", code, stderr)
	}

	// pdfimages -list: header, separator, then one row per image with
	// width and height in columns 4 and 5. Sizes are in pixels; poppler
	// reports ~72 ppi units for the mediabox, so x-ppi/y-ppi columns
	// (13, 14) scale pixels back to page points.
	var sizes []ImageSize
	for i, line := range strings.Split(stdout, "\n") {
		if i < 2 || strings.TrimSpace(line) == "" {
			continue
		}
		fields := strings.Fields(line)
		if len(fields) < 14 {
			continue
		}
		w, errW := strconv.ParseFloat(fields[3], 64)
		h, errH := strconv.ParseFloat(fields[4], 64)
		xppi, errX := strconv.ParseFloat(fields[12], 64)
		yppi, errY := strconv.ParseFloat(fields[13], 64)
		if errW != nil || errH != nil || errX != nil || errY != nil || xppi == 0 || yppi == 0 {
			continue
		}
		sizes = append(sizes, ImageSize{
			Width:  (w * 72 / xppi) / pageW,
			Height: (h * 72 / yppi) / pageH,
		})
	}
	return sizes, nil
}

// ProbeText extracts text of the first maxPages pages via pdftotext.
func (PopplerInspector) ProbeText(ref *docmodel.FileRef, maxPages int) (string, error) {
	if ref.Path == "" {
		return "", fmt.Errorf("inspector requires a path-backed file reference")
	}
	stdout, stderr, code, err := utils.RunCommand(context.Background(), "pdftotext",
		"-f", "1", "-l", strconv.Itoa(maxPages), ref.Path, "-")
	if err != nil {
		return "", err
	}
	if code != 0 {
		return "", docmodel.Externalf("pdftotext exited with %d: %s", code, stderr)
	}
	return stdout, nil
}

// Truncate writes a copy limited to maxPages via qpdf.
func (PopplerInspector) Truncate(ref *docmodel.FileRef, maxPages int) (*docmodel.FileRef, error) {
	if ref.Path == "" {
		return nil, fmt.Errorf("inspector requires a path-backed file reference")
	}
	outPath := ref.Path + ".head.pdf"
	_, stderr, code, err := utils.RunCommand(context.Background(), "qpdf",
		ref.Path, "--pages", ".", fmt.Sprintf("1-%d", maxPages), "--", outPath)
	if err != nil {
		return nil, err
	}
	if code != 0 {
		return nil, docmodel.Externalf("qpdf exited with %d: %s", code, stderr)
	}
	return docmodel.PathRef(outPath), nil
}

func (PopplerInspector) pageSize(ref *docmodel.FileRef) (float64, float64, error) {
	stdout, stderr, code, err := utils.RunCommand(context.Background(), "pdfinfo", ref.Path)
	if err != nil {
		return 0, 0, err
	}
	if code != 0 {
		return 0, 0, docmodel.Externalf("pdfinfo exited with %d: %s", code, stderr)
	}
	m := pdfinfoSize.FindStringSubmatch(stdout)
	if m == nil {
		return 0, 0, docmodel.Parsef("pdfinfo output contained no page size")
	}
	w, _ := strconv.ParseFloat(m[1], 64)
	h, _ := strconv.ParseFloat(m[2], 64)
	if w == 0 || h == 0 {
		return 0, 0, docmodel.Parsef("pdfinfo reported a zero page size")
	}
	return w, h, nil
}
