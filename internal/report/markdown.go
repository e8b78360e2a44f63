package report

import (
	"strings"

	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

// printer renders numbers with thousands separators.
var printer = message.NewPrinter(language.English)

func grouped(n int64) string {
	return printer.Sprintf("%d", n)
}

// withSign is grouped formatting with an explicit plus for positive values.
func withSign(n int64) string {
	if n > 0 {
		return "+" + grouped(n)
	}

	return grouped(n)
}

// plural picks the singular or plural noun for a count.
func plural(n int64, singular, pluralForm string) string {
	if n == 1 || n == -1 {
		return singular
	}

	return pluralForm
}

var markdownEscaper = strings.NewReplacer(
	`\`, `\\`,
	"`", "\\`",
	"*", `\*`,
	"_", `\_`,
	"{", `\{`,
	"}", `\}`,
	"[", `\[`,
	"]", `\]`,
	"(", `\(`,
	")", `\)`,
	"#", `\#`,
	"+", `\+`,
	"!", `\!`,
	"|", `\|`,
	">", `\>`,
)

func escapeMarkdown(s string) string {
	return markdownEscaper.Replace(s)
}

// doc accumulates a markdown document block by block.
type doc struct {
	b strings.Builder
}

func (d *doc) H2(text string) {
	d.b.WriteString("## " + text + "\n\n")
}

func (d *doc) H3(text string) {
	d.b.WriteString("### " + text + "\n\n")
}

func (d *doc) H4(text string) {
	d.b.WriteString("#### " + text + "\n\n")
}

func (d *doc) P(text string) {
	d.b.WriteString(text + "\n\n")
}

func (d *doc) UL(items []string) {
	for _, item := range items {
		d.b.WriteString("- " + item + "\n")
	}

	d.b.WriteString("\n")
}

func (d *doc) Table(headers []string, rows [][]string) {
	d.b.WriteString("| " + strings.Join(headers, " | ") + " |\n")

	separators := make([]string, len(headers))
	for i := range separators {
		separators[i] = "---"
	}

	d.b.WriteString("| " + strings.Join(separators, " | ") + " |\n")

	for _, row := range rows {
		d.b.WriteString("| " + strings.Join(row, " | ") + " |\n")
	}

	d.b.WriteString("\n")
}

func (d *doc) String() string {
	return strings.TrimRight(d.b.String(), "\n") + "\n"
}
