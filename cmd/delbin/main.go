package main

import (
	"encoding/hex"
	"flag"
	"fmt"
	"log"
	"os"
	"strings"

	"github.com/BurntSushi/toml"

	"github.com/delbin/delbin"
)

const defaultWritePermission = 0644 // -rw-r--r--

type args struct {
	schemaPath *string
	envPath    *string
	sectionDir *string

	mode      *string // "generate" or "merge"
	imagePath *string // input for -mode=merge

	outputPath   *string
	manifestPath *string
}

func readArgs() *args {
	a := &args{
		schemaPath: flag.String("schema", "", "Path to the .delbin schema file"),
		envPath:    flag.String("env", "", "Path to a TOML file of environment bindings"),
		sectionDir: flag.String("sections", "", "Directory of files to register as named sections (file name becomes section name)"),

		mode:      flag.String("mode", "generate", "What to do with the schema: 'generate' or 'merge'"),
		imagePath: flag.String("image", "", "Path to the firmware image to append (required for -mode=merge)"),

		outputPath:   flag.String("out", "/dev/stdout", "Path to write the compiled bytes"),
		manifestPath: flag.String("manifest", "", "Optional path to write a TOML manifest (hex bytes, warnings)"),
	}
	flag.Parse()
	return a
}

// manifest is the external collaborator format delbin itself doesn't
// define a schema for — it's the CLI's own reporting format, not part of
// the compiler's public API.
type manifest struct {
	Schema   string   `toml:"schema"`
	Bytes    string   `toml:"bytes_hex"`
	Size     int      `toml:"size"`
	Warnings []string `toml:"warnings,omitempty"`
}

func main() {
	a := readArgs()

	if *a.schemaPath == "" {
		log.Fatal("Schema not informed")
	}
	schemaBytes, err := os.ReadFile(*a.schemaPath)
	if err != nil {
		log.Fatalf("Can't read schema: %s", err.Error())
	}

	env, err := loadEnvironment(*a.envPath)
	if err != nil {
		log.Fatalf("Can't read environment: %s", err.Error())
	}

	var res delbin.Result
	switch *a.mode {
	case "generate":
		sections, err := loadSections(*a.sectionDir)
		if err != nil {
			log.Fatalf("Can't read sections: %s", err.Error())
		}
		res, err = delbin.Generate(string(schemaBytes), env, sections)
		if err != nil {
			log.Fatal(err)
		}

	case "merge":
		if *a.imagePath == "" {
			log.Fatal("Image not informed for -mode=merge")
		}
		image, err := os.ReadFile(*a.imagePath)
		if err != nil {
			log.Fatalf("Can't read image: %s", err.Error())
		}
		res, err = delbin.Merge(string(schemaBytes), env, image)
		if err != nil {
			log.Fatal(err)
		}

	default:
		log.Fatalf("Unknown mode `%s`, expected 'generate' or 'merge'", *a.mode)
	}

	for _, w := range res.Warnings {
		fmt.Fprintln(os.Stderr, w.String())
	}

	if err := os.WriteFile(*a.outputPath, res.Bytes, defaultWritePermission); err != nil {
		log.Fatalf("Can't write output: %s", err.Error())
	}

	if *a.manifestPath != "" {
		if err := writeManifest(*a.manifestPath, *a.schemaPath, res); err != nil {
			log.Fatalf("Can't write manifest: %s", err.Error())
		}
	}
}

func writeManifest(path, schemaPath string, res delbin.Result) error {
	m := manifest{
		Schema: schemaPath,
		Bytes:  strings.ToUpper(hex.EncodeToString(res.Bytes)),
		Size:   len(res.Bytes),
	}
	for _, w := range res.Warnings {
		m.Warnings = append(m.Warnings, w.String())
	}

	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, defaultWritePermission)
	if err != nil {
		return err
	}
	defer f.Close()
	return toml.NewEncoder(f).Encode(m)
}

// loadEnvironment reads a TOML table of name -> (integer | string)
// bindings. An empty path yields an empty Environment, not an error.
func loadEnvironment(path string) (*delbin.Environment, error) {
	env := delbin.NewEnvironment()
	if path == "" {
		return env, nil
	}

	var raw map[string]interface{}
	if _, err := toml.DecodeFile(path, &raw); err != nil {
		return nil, err
	}
	for name, v := range raw {
		switch val := v.(type) {
		case int64:
			env.SetInt(name, uint64(val))
		case string:
			env.SetString(name, val)
		default:
			return nil, fmt.Errorf("environment variable `%s` must be an integer or a string", name)
		}
	}
	return env, nil
}

// loadSections reads every regular file in dir into a section named
// after the file (spec §3 "Section store").
func loadSections(dir string) (*delbin.SectionStore, error) {
	store := delbin.NewSectionStore(nil)
	if dir == "" {
		return store, nil
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	sections := map[string][]byte{}
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		data, err := os.ReadFile(dir + "/" + entry.Name())
		if err != nil {
			return nil, err
		}
		sections[entry.Name()] = data
	}
	return delbin.NewSectionStore(sections), nil
}
