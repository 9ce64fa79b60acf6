// Package library provides the external-function knowledge base consulted by
// the analyzers: which library functions are side-effect free, which write
// through which pointer arguments, and which allocate or release memory.
// A builtin table covers the common C standard library; user configuration
// files (YAML, TOML or JSON) extend or override it.
package library

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/knadh/koanf/parsers/json"
	"github.com/knadh/koanf/parsers/toml"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// ArgInfo describes what a function does with one argument (1-based index).
type ArgInfo struct {
	// Write is true when the function may write through the pointed-to
	// argument.
	Write bool `koanf:"write"`
}

// FunctionInfo describes one configured external function.
type FunctionInfo struct {
	// Pure means calling the function has no observable side effect.
	Pure bool `koanf:"pure"`
	// Alloc means the return value is a fresh heap allocation.
	Alloc bool `koanf:"alloc"`
	// Dealloc means the function releases its first argument.
	Dealloc bool `koanf:"dealloc"`
	// Args carries per-argument behavior, keyed by 1-based index.
	Args map[int]ArgInfo `koanf:"args"`
}

// Library answers queries about functions and types the analyzer has no
// body for.
type Library struct {
	functions  map[string]FunctionInfo
	valueTypes map[string]bool
}

// fileConfig is the on-disk shape of a library configuration file.
type fileConfig struct {
	Functions  map[string]FunctionInfo `koanf:"functions"`
	ValueTypes []string                `koanf:"value_types"`
}

// Default returns a library populated with the builtin C standard library
// table.
func Default() *Library {
	l := &Library{
		functions:  make(map[string]FunctionInfo),
		valueTypes: make(map[string]bool),
	}

	for _, name := range pureFunctions {
		l.functions[name] = FunctionInfo{Pure: true}
	}
	for _, name := range allocFunctions {
		l.functions[name] = FunctionInfo{Alloc: true}
	}
	for _, name := range deallocFunctions {
		l.functions[name] = FunctionInfo{Dealloc: true}
	}
	for name, info := range argFunctions {
		l.functions[name] = info
	}
	for _, name := range valueTypes {
		l.valueTypes[name] = true
	}
	return l
}

// Load merges one or more configuration files into the library. Later files
// win on conflicting entries.
func (l *Library) Load(paths ...string) error {
	for _, path := range paths {
		k := koanf.New(".")

		var parser koanf.Parser
		switch strings.ToLower(filepath.Ext(path)) {
		case ".yaml", ".yml":
			parser = yaml.Parser()
		case ".toml":
			parser = toml.Parser()
		case ".json":
			parser = json.Parser()
		default:
			return fmt.Errorf("unsupported library config format: %s", path)
		}

		if err := k.Load(file.Provider(path), parser); err != nil {
			return fmt.Errorf("failed to load library config %s: %w", path, err)
		}

		var cfg fileConfig
		if err := k.Unmarshal("", &cfg); err != nil {
			return fmt.Errorf("failed to parse library config %s: %w", path, err)
		}

		for name, info := range cfg.Functions {
			l.functions[name] = info
		}
		for _, t := range cfg.ValueTypes {
			l.valueTypes[t] = true
		}
	}
	return nil
}

// IsKnownFunction reports whether the library has any entry for name.
func (l *Library) IsKnownFunction(name string) bool {
	_, ok := l.functions[name]
	return ok
}

// IsFunctionSideEffectFree reports whether calling name provably has no
// observable side effect. Unknown functions report false.
func (l *Library) IsFunctionSideEffectFree(name string) bool {
	info, ok := l.functions[name]
	return ok && info.Pure
}

// IsArgumentWritten reports whether the function may write through the given
// 1-based argument. known is false for functions or arguments the library
// has no information about; callers must treat those conservatively.
func (l *Library) IsArgumentWritten(name string, arg int) (written, known bool) {
	info, ok := l.functions[name]
	if !ok {
		return false, false
	}
	if info.Pure {
		return false, true
	}
	if ai, ok := info.Args[arg]; ok {
		return ai.Write, true
	}
	// Allocation and deallocation functions never write through their
	// arguments.
	if info.Alloc || info.Dealloc {
		return false, true
	}
	return false, false
}

// IsAllocation reports whether name returns fresh heap memory.
func (l *Library) IsAllocation(name string) bool {
	info, ok := l.functions[name]
	return ok && info.Alloc
}

// IsDeallocation reports whether name releases its pointer argument.
func (l *Library) IsDeallocation(name string) bool {
	info, ok := l.functions[name]
	return ok && info.Dealloc
}

// IsValueType reports whether typeName is a known standard value type whose
// construction and destruction carry no side effect beyond holding data.
// Template arguments are stripped before lookup.
func (l *Library) IsValueType(typeName string) bool {
	if i := strings.IndexByte(typeName, '<'); i >= 0 {
		typeName = typeName[:i]
	}
	return l.valueTypes[strings.TrimSpace(typeName)]
}

var pureFunctions = []string{
	"abs", "labs", "llabs", "fabs", "fabsf", "fabsl",
	"strlen", "strcmp", "strncmp", "strcasecmp", "strncasecmp",
	"strchr", "strrchr", "strstr", "strspn", "strcspn", "strpbrk",
	"memcmp", "memchr",
	"isalnum", "isalpha", "isdigit", "isspace", "isupper", "islower",
	"ispunct", "isprint", "iscntrl", "isxdigit", "isgraph",
	"toupper", "tolower",
	"atoi", "atol", "atoll", "atof",
	"sin", "cos", "tan", "asin", "acos", "atan", "atan2",
	"sinh", "cosh", "tanh", "exp", "log", "log2", "log10",
	"pow", "sqrt", "cbrt", "hypot", "ceil", "floor", "round", "trunc",
	"fmod", "fmin", "fmax", "ldexp", "frexp",
	"div", "ldiv", "lldiv",
}

var allocFunctions = []string{
	"malloc", "calloc", "realloc", "strdup", "strndup",
	"aligned_alloc", "valloc",
	"fopen", "tmpfile", "opendir",
}

var deallocFunctions = []string{
	"free", "fclose", "closedir",
}

var argFunctions = map[string]FunctionInfo{
	"memcpy":   {Args: map[int]ArgInfo{1: {Write: true}, 2: {}}},
	"memmove":  {Args: map[int]ArgInfo{1: {Write: true}, 2: {}}},
	"memset":   {Args: map[int]ArgInfo{1: {Write: true}}},
	"strcpy":   {Args: map[int]ArgInfo{1: {Write: true}, 2: {}}},
	"strncpy":  {Args: map[int]ArgInfo{1: {Write: true}, 2: {}}},
	"strcat":   {Args: map[int]ArgInfo{1: {Write: true}, 2: {}}},
	"strncat":  {Args: map[int]ArgInfo{1: {Write: true}, 2: {}}},
	"sprintf":  {Args: map[int]ArgInfo{1: {Write: true}, 2: {}}},
	"snprintf": {Args: map[int]ArgInfo{1: {Write: true}, 3: {}}},
	"sscanf":   {Args: map[int]ArgInfo{1: {}, 2: {}}},
	"printf":   {Args: map[int]ArgInfo{1: {}}},
	"fprintf":  {Args: map[int]ArgInfo{2: {}}},
	"puts":     {Args: map[int]ArgInfo{1: {}}},
	"fputs":    {Args: map[int]ArgInfo{1: {}}},
	"fgets":    {Args: map[int]ArgInfo{1: {Write: true}}},
	"fread":    {Args: map[int]ArgInfo{1: {Write: true}}},
	"fwrite":   {Args: map[int]ArgInfo{1: {}}},
	"qsort":    {Args: map[int]ArgInfo{1: {Write: true}}},
}

var valueTypes = []string{
	"std::string", "std::wstring", "std::u16string", "std::u32string",
	"std::string_view",
	"std::vector", "std::deque", "std::list", "std::array",
	"std::map", "std::set", "std::multimap", "std::multiset",
	"std::unordered_map", "std::unordered_set",
	"std::pair", "std::tuple", "std::optional", "std::variant",
	"std::bitset",
	"string", "wstring", "vector", "pair",
}
