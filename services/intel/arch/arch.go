// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package arch detects project-level architectural styles.
//
// Detection is evidence based: directory layout, symbol naming
// conventions, and framework manifest files each contribute weighted
// evidence toward one of seven styles. The detector never claims
// certainty; it ranks the strongest candidates and reports the
// evidence strings verbatim so callers can display the reasoning.
package arch

import (
	"encoding/json"
	"fmt"
	"math"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"

	"golang.org/x/mod/modfile"

	"github.com/AleutianAI/CodeAtlas/services/intel/ast"
	"github.com/AleutianAI/CodeAtlas/services/intel/graph"
	"github.com/AleutianAI/CodeAtlas/services/intel/project"
)

// Style identifies an architectural pattern.
type Style string

const (
	StyleMVC          Style = "MVC"
	StyleMVVM         Style = "MVVM"
	StyleMVP          Style = "MVP"
	StyleRepository   Style = "Repository"
	StyleServiceLayer Style = "Service Layer"
	StyleLayered      Style = "Layered"
	StyleClean        Style = "Clean Architecture"
)

// Match is one ranked architectural candidate.
type Match struct {
	Style      Style    `json:"style"`
	Confidence float64  `json:"confidence"`
	Evidence   []string `json:"evidence"`
	Framework  string   `json:"framework,omitempty"`
}

const (
	// DefaultTopN bounds how many candidates are reported.
	DefaultTopN = 3

	// DefaultMinConfidence drops candidates with only incidental
	// evidence.
	DefaultMinConfidence = 0.25
)

// Config tunes architectural detection. The zero value uses defaults.
type Config struct {
	TopN          int                `yaml:"top_n" validate:"omitempty,gte=1"`
	MinConfidence float64            `yaml:"min_confidence" validate:"omitempty,gte=0,lte=1"`
	Weights       map[string]float64 `yaml:"weights"`
}

// DefaultConfig returns the built-in detection parameters.
func DefaultConfig() Config {
	return Config{TopN: DefaultTopN, MinConfidence: DefaultMinConfidence}
}

// defaultWeights hold the per-aspect evidence weights. A key may be
// overridden per style ("mvc.directories") or for all styles at once
// ("directories").
var defaultWeights = map[string]float64{
	"directories": 0.5,
	"naming":      0.2,
	"framework":   0.3,
	"layer_edges": 0.1,
}

func (c Config) weight(style, aspect string) float64 {
	if w, ok := c.Weights[style+"."+aspect]; ok {
		return w
	}
	if w, ok := c.Weights[aspect]; ok {
		return w
	}
	return defaultWeights[aspect]
}

func (c Config) topN() int {
	if c.TopN <= 0 {
		return DefaultTopN
	}
	return c.TopN
}

func (c Config) minConfidence() float64 {
	if c.MinConfidence <= 0 {
		return DefaultMinConfidence
	}
	return c.MinConfidence
}

// styleSpec describes the structural fingerprint of one style.
//
// dirGroups is a list of layer roles; a role is satisfied when any of
// its segment spellings appears as a directory in the project. A style
// earns directory evidence once minGroups roles are satisfied, scaled
// by how many of the roles matched.
type styleSpec struct {
	style        Style
	key          string
	dirGroups    [][]string
	minGroups    int
	nameSuffixes []string
	layerFrom    []string
	layerTo      []string
}

var styleSpecs = []styleSpec{
	{
		style:     StyleMVC,
		key:       "mvc",
		dirGroups: [][]string{{"models", "model", "entities"}, {"views", "view", "templates"}, {"controllers", "controller", "handlers"}},
		minGroups: 2, nameSuffixes: []string{"controller"},
		layerFrom: []string{"controllers", "controller", "handlers"},
		layerTo:   []string{"models", "model", "entities"},
	},
	{
		style:     StyleMVVM,
		key:       "mvvm",
		dirGroups: [][]string{{"viewmodels", "viewmodel"}, {"views", "view"}},
		minGroups: 2, nameSuffixes: []string{"viewmodel", "view_model"},
		layerFrom: []string{"viewmodels", "viewmodel"},
		layerTo:   []string{"models", "model"},
	},
	{
		style:     StyleMVP,
		key:       "mvp",
		dirGroups: [][]string{{"presenters", "presenter"}, {"views", "view"}},
		minGroups: 2, nameSuffixes: []string{"presenter"},
	},
	{
		style:     StyleRepository,
		key:       "repository",
		dirGroups: [][]string{{"repositories", "repository", "repos"}},
		minGroups: 1, nameSuffixes: []string{"repository"},
		layerFrom: []string{"services", "service"},
		layerTo:   []string{"repositories", "repository", "repos"},
	},
	{
		style:     StyleServiceLayer,
		key:       "service_layer",
		dirGroups: [][]string{{"services", "service"}},
		minGroups: 1, nameSuffixes: []string{"service"},
	},
	{
		style: StyleLayered,
		key:   "layered",
		dirGroups: [][]string{
			{"presentation", "ui", "web", "api"},
			{"business", "domain", "core", "logic"},
			{"data", "persistence", "infrastructure", "dal"},
		},
		minGroups: 3,
	},
	{
		style: StyleClean,
		key:   "clean",
		dirGroups: [][]string{
			{"entities", "domain"},
			{"usecases", "usecase", "application", "interactors"},
			{"infrastructure", "adapters", "frameworks", "gateways"},
		},
		minGroups: 3,
	},
}

// Detect ranks architectural styles for the project.
//
// # Description
//
//	Scores each known style from three evidence sources: directory
//	segments present in the analyzed files, class naming conventions,
//	and framework manifest files probed under root. The dependency
//	graph supplies a small corroborating bonus when the expected
//	layering direction is observed. At most cfg.TopN matches are
//	returned, sorted by descending confidence then style name.
//
// # Inputs
//
//   - root: filesystem root used only to probe manifest files.
//   - p: the aggregated project model.
//   - g: the dependency graph built from p. May be nil.
//   - cfg: detection parameters; zero value uses defaults.
//
// # Outputs
//
//   - []Match: ranked candidates, possibly empty.
//
// # Thread Safety
//
//   - Safe for concurrent use; reads only.
func Detect(root string, p *project.Project, g *graph.Graph, cfg Config) []Match {
	segments := directorySegments(p)
	frameworks := probeFrameworks(root)

	var matches []Match
	for _, spec := range styleSpecs {
		m, ok := scoreStyle(spec, segments, p, g, frameworks, cfg)
		if ok {
			matches = append(matches, m)
		}
	}

	sort.Slice(matches, func(i, j int) bool {
		if matches[i].Confidence != matches[j].Confidence {
			return matches[i].Confidence > matches[j].Confidence
		}
		return matches[i].Style < matches[j].Style
	})
	if len(matches) > cfg.topN() {
		matches = matches[:cfg.topN()]
	}
	return matches
}

func scoreStyle(spec styleSpec, segments map[string]bool, p *project.Project, g *graph.Graph, frameworks []framework, cfg Config) (Match, bool) {
	conf := 0.0
	var ev []string

	matched := 0
	var matchedDirs []string
	for _, group := range spec.dirGroups {
		for _, seg := range group {
			if segments[seg] {
				matched++
				matchedDirs = append(matchedDirs, seg+"/")
				break
			}
		}
	}
	if matched >= spec.minGroups {
		w := cfg.weight(spec.key, "directories") * float64(matched) / float64(len(spec.dirGroups))
		conf += w
		ev = append(ev, fmt.Sprintf("directory layout: %s", strings.Join(matchedDirs, ", ")))
	}

	if len(spec.nameSuffixes) > 0 {
		named := countSuffixed(p, spec.nameSuffixes)
		if named > 0 {
			conf += cfg.weight(spec.key, "naming")
			ev = append(ev, fmt.Sprintf("%d class(es) following %s naming", named, spec.style))
		}
	}

	fw := ""
	for _, f := range frameworks {
		if f.style == spec.style {
			conf += cfg.weight(spec.key, "framework")
			ev = append(ev, f.evidence)
			fw = f.name
			break
		}
	}

	if g != nil && len(spec.layerFrom) > 0 {
		if edges := layerEdges(g, spec.layerFrom, spec.layerTo); edges > 0 {
			conf += cfg.weight(spec.key, "layer_edges")
			ev = append(ev, fmt.Sprintf("%d import(s) crossing the expected layer boundary", edges))
		}
	}

	conf = math.Round(math.Min(1.0, conf)*100) / 100
	if conf < cfg.minConfidence() || len(ev) == 0 {
		return Match{}, false
	}
	return Match{Style: spec.style, Confidence: conf, Evidence: ev, Framework: fw}, true
}

// directorySegments collects every lowercase directory name appearing
// in the analyzed file paths.
func directorySegments(p *project.Project) map[string]bool {
	segments := make(map[string]bool)
	for _, f := range p.Files {
		dir := path.Dir(f.FilePath)
		if dir == "." {
			continue
		}
		for _, seg := range strings.Split(dir, "/") {
			if seg != "" {
				segments[strings.ToLower(seg)] = true
			}
		}
	}
	return segments
}

func countSuffixed(p *project.Project, suffixes []string) int {
	count := 0
	for _, sym := range p.Symbols {
		if sym.Kind != ast.SymbolKindClass && sym.Kind != ast.SymbolKindInterface {
			continue
		}
		lower := strings.ToLower(sym.Name)
		for _, suffix := range suffixes {
			if strings.HasSuffix(lower, suffix) && lower != suffix {
				count++
				break
			}
		}
	}
	return count
}

// layerEdges counts resolved graph edges whose source lives under a
// layerFrom directory and whose target lives under a layerTo
// directory.
func layerEdges(g *graph.Graph, from, to []string) int {
	count := 0
	for _, e := range g.Edges {
		if !e.Resolved {
			continue
		}
		if pathHasSegment(e.From, from) && pathHasSegment(e.To, to) {
			count++
		}
	}
	return count
}

func pathHasSegment(filePath string, names []string) bool {
	dir := path.Dir(filePath)
	for _, seg := range strings.Split(dir, "/") {
		lower := strings.ToLower(seg)
		for _, name := range names {
			if lower == name {
				return true
			}
		}
	}
	return false
}

// framework is one detected framework and the style it implies.
type framework struct {
	name     string
	style    Style
	evidence string
}

const maxManifestBytes = 1 << 20

// probeFrameworks inspects well-known manifest files under root.
// Missing or unreadable manifests are skipped silently; the probe is
// advisory evidence, never an error source.
func probeFrameworks(root string) []framework {
	var found []framework

	if data := readManifest(filepath.Join(root, "go.mod")); data != nil {
		if f, err := modfile.Parse("go.mod", data, nil); err == nil {
			for _, req := range f.Require {
				if name, ok := goFrameworks[modulePrefix(req.Mod.Path)]; ok {
					found = append(found, framework{
						name: name, style: StyleMVC,
						evidence: fmt.Sprintf("go.mod requires %s (%s)", req.Mod.Path, name),
					})
					break
				}
			}
		}
	}

	if data := readManifest(filepath.Join(root, "package.json")); data != nil {
		var pkg struct {
			Dependencies    map[string]string `json:"dependencies"`
			DevDependencies map[string]string `json:"devDependencies"`
		}
		if err := json.Unmarshal(data, &pkg); err == nil {
			deps := make(map[string]bool, len(pkg.Dependencies)+len(pkg.DevDependencies))
			for d := range pkg.Dependencies {
				deps[d] = true
			}
			for d := range pkg.DevDependencies {
				deps[d] = true
			}
			for dep, fw := range jsFrameworks {
				if deps[dep] {
					found = append(found, framework{
						name: fw.name, style: fw.style,
						evidence: fmt.Sprintf("package.json depends on %s (%s)", dep, fw.name),
					})
				}
			}
		}
	}

	if fileExists(filepath.Join(root, "manage.py")) {
		found = append(found, framework{
			name: "Django", style: StyleMVC,
			evidence: "manage.py present (Django)",
		})
	} else if data := readManifest(filepath.Join(root, "requirements.txt")); data != nil {
		lower := strings.ToLower(string(data))
		if strings.Contains(lower, "django") {
			found = append(found, framework{name: "Django", style: StyleMVC, evidence: "requirements.txt lists django"})
		} else if strings.Contains(lower, "flask") {
			found = append(found, framework{name: "Flask", style: StyleMVC, evidence: "requirements.txt lists flask"})
		}
	}

	if data := readManifest(filepath.Join(root, "Gemfile")); data != nil {
		if strings.Contains(string(data), "rails") {
			found = append(found, framework{name: "Ruby on Rails", style: StyleMVC, evidence: "Gemfile lists rails"})
		}
	}

	if data := readManifest(filepath.Join(root, "composer.json")); data != nil {
		if strings.Contains(string(data), "laravel/framework") {
			found = append(found, framework{name: "Laravel", style: StyleMVC, evidence: "composer.json requires laravel/framework"})
		}
	}

	for _, name := range []string{"pom.xml", "build.gradle", "build.gradle.kts"} {
		if data := readManifest(filepath.Join(root, name)); data != nil {
			if strings.Contains(strings.ToLower(string(data)), "springframework") {
				found = append(found, framework{name: "Spring", style: StyleMVC, evidence: name + " references springframework"})
				break
			}
		}
	}

	if projects, err := filepath.Glob(filepath.Join(root, "*.csproj")); err == nil {
		for _, proj := range projects {
			data := readManifest(proj)
			if data == nil {
				continue
			}
			content := string(data)
			base := filepath.Base(proj)
			if strings.Contains(content, "Microsoft.AspNetCore") {
				found = append(found, framework{name: "ASP.NET Core", style: StyleMVC, evidence: base + " targets ASP.NET Core"})
			} else if strings.Contains(content, "Xamarin.Forms") || strings.Contains(content, "Microsoft.Maui") {
				found = append(found, framework{name: ".NET MAUI/Xamarin", style: StyleMVVM, evidence: base + " targets a XAML UI framework"})
			}
		}
	}

	return found
}

// goFrameworks maps go.mod module prefixes to web framework names.
var goFrameworks = map[string]string{
	"github.com/gin-gonic/gin": "Gin",
	"github.com/labstack/echo": "Echo",
	"github.com/gofiber/fiber": "Fiber",
	"github.com/go-chi/chi":    "chi",
	"github.com/beego/beego":   "Beego",
}

var jsFrameworks = map[string]struct {
	name  string
	style Style
}{
	"express":       {"Express", StyleMVC},
	"@nestjs/core":  {"NestJS", StyleMVC},
	"vue":           {"Vue", StyleMVVM},
	"@angular/core": {"Angular", StyleMVVM},
	"knockout":      {"Knockout", StyleMVVM},
}

// modulePrefix trims a major-version suffix like /v4 so lookup keys
// stay version independent.
func modulePrefix(module string) string {
	parts := strings.Split(module, "/")
	if len(parts) > 3 {
		last := parts[len(parts)-1]
		if strings.HasPrefix(last, "v") && len(last) <= 3 {
			return strings.Join(parts[:len(parts)-1], "/")
		}
	}
	return module
}

func readManifest(p string) []byte {
	info, err := os.Stat(p)
	if err != nil || info.IsDir() || info.Size() > maxManifestBytes {
		return nil
	}
	data, err := os.ReadFile(p)
	if err != nil {
		return nil
	}
	return data
}

func fileExists(p string) bool {
	info, err := os.Stat(p)
	return err == nil && !info.IsDir()
}
