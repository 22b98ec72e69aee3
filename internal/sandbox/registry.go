package sandbox

import "github.com/localjudge/engine/internal/contest"

// LanguageSpec describes how to compile (optionally) and run one submission
// language. No plugin mechanism: the registry is a fixed map matching
// spec.md's allowed_languages vocabulary exactly (Non-goal: pluggable
// language backends).
type LanguageSpec struct {
	FileName   string   // source file name written into the scratch dir
	CompileCmd []string // empty if the language is interpreted
	RunCmd     []string // argv; "%BIN%" is substituted with the compiled binary path
}

var registry = map[contest.Language]LanguageSpec{
	contest.LanguagePython: {
		FileName: "main.py",
		RunCmd:   []string{"python3", "main.py"},
	},
	contest.LanguageCPP: {
		FileName:   "main.cpp",
		CompileCmd: []string{"g++", "-O2", "-std=c++17", "-o", "main", "main.cpp"},
		RunCmd:     []string{"%BIN%"},
	},
	contest.LanguageCSharp: {
		FileName:   "main.cs",
		CompileCmd: []string{"mcs", "-out:main.exe", "main.cs"},
		RunCmd:     []string{"mono", "main.exe"},
	},
}

// Lookup returns the LanguageSpec for language, or false if it is not
// registered (the registry, not the per-contest allow-list, is the final
// authority on what the judge can even attempt to run).
func Lookup(language contest.Language) (LanguageSpec, bool) {
	spec, ok := registry[language]
	return spec, ok
}
