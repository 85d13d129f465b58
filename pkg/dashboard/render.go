package dashboard

import (
	"fmt"

	"github.com/boa-dev/conformoor/pkg/report"
)

// ReleaseItem is a rendered release entry.
type ReleaseItem struct {
	Tag string
	URL string
}

// commitURL builds the GitHub commit URL for a repo and commit hash.
func commitURL(repo, commit string) string {
	return "https://github.com/" + repo + "/commit/" + commit
}

// InfoLink builds the clickable element pointing at the suite-tree page
// for a ref. The lookup of cached data happens when the target page is
// requested, so building the link for an unpopulated ref is always safe.
func InfoLink(ref string) *Node {
	return Element("a", Text("(extended information)")).
		WithAttr("href", "/info/"+ref)
}

// HistorySummary renders the summary panel for the newest snapshot of a
// ref: a heading and the computed counters, with the extended-information
// link appended only when cached data for the ref is present.
func HistorySummary(
	repo, ref string,
	last *report.Latest,
	withInfoLink bool,
) *Node {
	if last == nil {
		return Element("div")
	}

	list := Element("ul",
		Element("li",
			Element("a", Text("Commit: "+last.Commit)).
				WithAttr("href", commitURL(repo, last.Commit)),
		),
		Element("li", Text(fmt.Sprintf("Total tests: %d", last.Total))),
		Element("li", Text(fmt.Sprintf("Passed tests: %d", last.Passed))),
		Element("li", Text(fmt.Sprintf("Ignored tests: %d", last.Ignored))),
		Element("li", Text(fmt.Sprintf("Failed tests: %d", last.Failed()))),
		Element("li", Text(
			"Conformance: "+report.FormatConformance(last.Conformance())+"%",
		)),
	)

	container := Element("div",
		Element("h3", Text("Latest results ("+ref+")")),
		list,
	)

	if withInfoLink {
		container.Append(InfoLink(ref))
	}

	return container
}

// SuiteTree renders the recursive suite tree of a snapshot, depth-first
// in source order. A nil snapshot or a snapshot without a results tree
// renders an empty container.
func SuiteTree(latest *report.Latest) *Node {
	container := Element("div")

	if latest == nil || latest.Results == nil {
		return container
	}

	list := Element("ul")

	for _, suite := range latest.Results.Suites {
		list.Append(suiteItem(suite))
	}

	return container.Append(list)
}

// suiteItem renders one suite node: name plus the counters
// passed / ignored / failed / total, with nested suites as a sub-list.
func suiteItem(s report.SuiteResult) *Node {
	item := Element("li",
		Element("b", Text(s.Name)),
		Text(fmt.Sprintf(" %d / %d / %d / %d",
			s.Passed, s.Ignored, s.Failed(), s.Total)),
	)

	if len(s.Suites) > 0 {
		sub := Element("ul")

		for _, child := range s.Suites {
			sub.Append(suiteItem(child))
		}

		item.Append(sub)
	}

	return item
}

// ReleaseList renders the tracked release tags.
func ReleaseList(releases []ReleaseItem) *Node {
	list := Element("ul")

	for _, rel := range releases {
		list.Append(Element("li",
			Element("a", Text(rel.Tag)).WithAttr("href", rel.URL),
		))
	}

	return list
}

// Page renders the full dashboard page from the shared state. The
// primary ref fills the master-latest slot; every populated ref gets a
// summary panel.
func Page(
	repo string,
	primaryRef string,
	state *State,
	releases []ReleaseItem,
) *Node {
	body := Element("body",
		Element("h1", Text("test262 conformance")),
	)

	masterSlot := Element("div").WithAttr("id", "master-latest")
	if state.Latest(primaryRef) != nil {
		masterSlot.Append(InfoLink(primaryRef))
	}

	body.Append(masterSlot)

	for _, ref := range state.Refs() {
		latest := state.Latest(ref)
		body.Append(HistorySummary(repo, ref, latest, latest != nil))
	}

	if len(releases) > 0 {
		body.Append(
			Element("h3", Text("Releases")),
			ReleaseList(releases),
		)
	}

	body.Append(Element("div").WithAttr("id", "info"))

	return Element("html",
		Element("head",
			Element("meta").WithAttr("charset", "utf-8"),
			Element("title", Text("test262 conformance")),
		),
		body,
	)
}
