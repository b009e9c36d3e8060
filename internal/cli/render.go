package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/scenariokit/scenariocat/internal/entity"
)

// printEntity writes a resolved entity as an indented element tree.
func printEntity(w io.Writer, e *entity.Entity) {
	fmt.Fprintf(w, "%s %s  (%s, %s)\n", e.Kind, e.Name, e.SourcePath, e.Fingerprint[:12])
	printElement(w, e.Root, "  ", true)
}

func printElement(w io.Writer, el *entity.Element, indent string, isRoot bool) {
	if !isRoot && el.Origin != nil {
		fmt.Fprintf(w, "%s%s %s  <- %s\n", indent, el.Tag, el.Origin.Name, el.Origin.Reference)
	} else {
		var attrs []string
		for _, a := range el.Attrs {
			attrs = append(attrs, a.Name+"="+entity.Format(a.Value))
		}
		line := indent + el.Tag
		if len(attrs) > 0 {
			line += " " + strings.Join(attrs, " ")
		}
		if el.Text != "" {
			line += " " + fmt.Sprintf("%q", el.Text)
		}
		fmt.Fprintln(w, line)
	}
	for _, c := range el.Children {
		printElement(w, c, indent+"  ", false)
	}
}

func printJSON(w io.Writer, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(w, string(data))
	return err
}
