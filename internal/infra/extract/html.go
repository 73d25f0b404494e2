package extract

import (
	"bytes"
	"context"
	"fmt"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/bryanwahyu/paperscore/internal/domain/jobs"
)

const blockSelector = "h1,h2,h3,h4,h5,h6,p,li,pre,blockquote,td,th,dt,dd,figcaption"

// HTML keeps the text of block elements one per line so headings stay on
// their own line for section detection.
type HTML struct{}

func (HTML) Extract(_ context.Context, data []byte) (string, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(data))
	if err != nil {
		return "", fmt.Errorf("%w: parse html: %v", jobs.ErrUnsupportedFormat, err)
	}
	doc.Find("script,style,noscript,nav,header,footer,svg").Remove()

	var b strings.Builder
	doc.Find(blockSelector).Each(func(_ int, s *goquery.Selection) {
		if s.ParentsFiltered(blockSelector).Length() > 0 {
			return
		}
		if line := collapse(s.Text()); line != "" {
			b.WriteString(line)
			b.WriteByte('\n')
		}
	})
	if b.Len() == 0 {
		return normalize(collapse(doc.Find("body").Text())), nil
	}
	return normalize(b.String()), nil
}

func collapse(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
