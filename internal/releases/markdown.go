package releases

import (
	"context"
	"fmt"
	"path"
	"strings"
)

// LatestAlias selects the newest version.
const LatestAlias = "latest"

// BackAlias returns to the version list.
const BackAlias = "back"

// VersionListMarkdown lists every version, newest first, as clickable
// download buttons.
func (s *Source) VersionListMarkdown(ctx context.Context) (string, error) {
	versions, err := s.Versions(ctx)
	if err != nil {
		return "", err
	}
	lines := make([]string, len(versions))
	for i, v := range versions {
		lines[i] = fmt.Sprintf(`- <span data-version="%s" class="download-btn">%s</span>`, v, v)
	}
	return strings.Join(lines, "\n"), nil
}

// ResolveVersion maps LatestAlias to the newest version; other values are
// returned unchanged.
func (s *Source) ResolveVersion(ctx context.Context, version string) (string, error) {
	if version != LatestAlias {
		return version, nil
	}
	return s.Latest(ctx)
}

// ReleaseMarkdown describes one release: commit, links, changes and assets.
// version may be LatestAlias.
func (s *Source) ReleaseMarkdown(ctx context.Context, version string) (string, error) {
	version, err := s.ResolveVersion(ctx, version)
	if err != nil {
		return "", err
	}
	idx, err := s.Index(ctx)
	if err != nil {
		return "", err
	}
	meta, err := s.Meta(ctx)
	if err != nil {
		return "", err
	}

	entry, ok := idx[version]
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrVersionNotFound, version)
	}
	return releaseMarkdown(version, entry, meta), nil
}

func releaseMarkdown(version string, r Release, meta Meta) string {
	var b strings.Builder

	b.WriteString(`<span data-version="back" class="download-btn">&larr; Back to all</span>` + "\n")
	fmt.Fprintf(&b, "# %s\n\n## %s\n\n", version, r.Title)

	commit := r.Commit
	if commit == "" {
		commit = "<commit>"
	}
	kind := r.Type
	if kind == "" {
		kind = "<type>"
	}
	fmt.Fprintf(&b, "Commit: `%s` | **`%s`**", commit, kind)
	for _, link := range []struct{ label, url string }{
		{"GitHub", r.GHRelease},
		{"VSCode", r.VSCodeRelease},
		{"Visual Studio", r.VSRelease},
	} {
		if link.url != "" {
			fmt.Fprintf(&b, " | [%s](%s)", link.label, link.url)
		}
	}
	b.WriteString("\n\n---\n\n### Changes\n\n")

	for _, f := range r.Features {
		fmt.Fprintf(&b, "- %s\n", f)
	}
	if r.GHChanges != "" {
		fmt.Fprintf(&b, "\n[Compare Releases (GitHub)](%s)\n", r.GHChanges)
	}

	b.WriteString("\n---\n\n**Assets:**\n\n")
	for _, f := range r.Files {
		b.WriteString(assetLine(f, meta) + "\n")
	}

	b.WriteString("\n**Source Code: (GitHub)**\n\n")
	if r.Src != "" {
		fmt.Fprintf(&b, "- [`%s`](%s) <sub>(gzip archive)</sub>\n", baseName(r.Src, "Archive.tar.gz"), r.Src)
	}
	if r.Zip != "" {
		fmt.Fprintf(&b, "- [`%s`](%s) <sub>(zip archive)</sub>\n", baseName(r.Zip, "Archive.zip"), r.Zip)
	}
	return b.String()
}

func assetLine(f NamedFile, meta Meta) string {
	name := baseName(f.URL, f.URL)
	var line string
	if m, ok := meta[f.Key]; ok {
		line = fmt.Sprintf("- %s [`%s`](%s) <sub>(%s)</sub>", m.Label, name, f.URL, m.Type)
	} else {
		line = fmt.Sprintf("- %s [`%s`](%s)", f.Key, name, f.URL)
	}
	if f.Hash != "" {
		line += fmt.Sprintf(" <sub>sha256:</sub> `%s`", f.Hash)
	}
	return line
}

func baseName(u, fallback string) string {
	name := path.Base(u)
	if name == "." || name == "/" || name == "" {
		return fallback
	}
	return name
}

// PageTitle returns the downloads page title for version ("" for the list).
func PageTitle(site, version string) string {
	if version == "" || version == BackAlias {
		return "Download " + site
	}
	return "Download " + site + " " + version
}
