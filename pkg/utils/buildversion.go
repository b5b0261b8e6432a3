package utils

import (
	"bufio"
	"bytes"
	"fmt"
	"log"
	"strings"
	"time"
)

const KeyHEAD = "HEAD"
const KeyTags = "tags"
const KeyBranch = "branch"
const KeyBuildDate = "buildDate"

// BuildVersion is parsed from the version.txt generated at build time, one "key: values" per line.
type BuildVersion struct {
	HEAD      *string    `json:"HEAD,omitempty"`
	Tags      []string   `json:"tags,omitempty"`
	Branch    *string    `json:"branch,omitempty"`
	BuildDate *time.Time `json:"buildDate,omitempty"`
}

func NewBuildVersion(rawText []byte) (*BuildVersion, error) {
	fields := make(map[string][]string)
	scanner := bufio.NewScanner(bytes.NewReader(rawText))
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		key, rest, found := strings.Cut(line, ":")
		if !found {
			log.Printf("skipping line: %s", line)
			continue
		}
		fields[strings.TrimSpace(key)] = append(fields[strings.TrimSpace(key)], strings.Fields(rest)...)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to scan build version: %w", err)
	}

	bv := new(BuildVersion)
	if vals := fields[KeyHEAD]; len(vals) > 0 {
		bv.HEAD = &vals[0]
	}
	if vals := fields[KeyTags]; len(vals) > 0 {
		bv.Tags = vals
	}
	if vals := fields[KeyBranch]; len(vals) > 0 {
		bv.Branch = &vals[0]
	}
	if vals := fields[KeyBuildDate]; len(vals) > 0 {
		buildDate, err := time.Parse(time.RFC3339, vals[0])
		if err != nil {
			log.Printf("failed to parse build date: %s", vals[0])
		} else if !buildDate.IsZero() {
			bv.BuildDate = &buildDate
		}
	}
	return bv, nil
}

func (bv *BuildVersion) String() string {
	if bv == nil {
		return "unknown"
	}
	parts := make([]string, 0)
	if bv.HEAD != nil {
		parts = append(parts, *bv.HEAD)
	}
	if len(bv.Tags) > 0 {
		parts = append(parts, "("+strings.Join(bv.Tags, ", ")+")")
	}
	if bv.Branch != nil {
		parts = append(parts, "on "+*bv.Branch)
	}
	if bv.BuildDate != nil {
		parts = append(parts, "built "+bv.BuildDate.Format(time.RFC3339))
	}
	if len(parts) == 0 {
		return "unknown"
	}
	return strings.Join(parts, " ")
}
