package repo

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Commit is one entry of the history
type Commit struct {
	Hash    string
	Author  string
	Date    time.Time
	Subject string
}

const fieldSep = "\x1f"

// History returns up to limit commits of dir, newest first. limit <= 0
// reads the whole history
func History(ctx context.Context, dir string, limit int) ([]Commit, error) {
	args := []string{"log", "--no-color", "--pretty=format:%H" + fieldSep + "%an" + fieldSep + "%aI" + fieldSep + "%s"}
	if limit > 0 {
		args = append(args, "--max-count="+strconv.Itoa(limit))
	}
	out, err := runGit(ctx, dir, args...)
	if err != nil {
		return nil, fmt.Errorf("git log: %w", err)
	}
	return parseLog(string(out))
}

func parseLog(out string) ([]Commit, error) {
	commits := []Commit{}
	for _, line := range strings.Split(out, "\n") {
		if strings.TrimSpace(line) == "" {
			continue
		}
		parts := strings.SplitN(line, fieldSep, 4)
		if len(parts) != 4 {
			return nil, fmt.Errorf("malformed log line %q", line)
		}
		date, err := time.Parse(time.RFC3339, parts[2])
		if err != nil {
			return nil, fmt.Errorf("commit %s: %w", parts[0], err)
		}
		commits = append(commits, Commit{Hash: parts[0], Author: parts[1], Date: date, Subject: parts[3]})
	}
	return commits, nil
}

// HistoryStats summarises a commit list for evidence
type HistoryStats struct {
	Commits       int
	Authors       int
	First, Last   time.Time
	Span          time.Duration
	MonolithicDay bool // Every commit landed within one day
}

// Stats computes HistoryStats; commits are expected newest first
func Stats(commits []Commit) HistoryStats {
	s := HistoryStats{Commits: len(commits)}
	if len(commits) == 0 {
		return s
	}
	authors := map[string]bool{}
	s.First, s.Last = commits[0].Date, commits[0].Date
	for _, c := range commits {
		authors[c.Author] = true
		if c.Date.Before(s.First) {
			s.First = c.Date
		}
		if c.Date.After(s.Last) {
			s.Last = c.Date
		}
	}
	s.Authors = len(authors)
	s.Span = s.Last.Sub(s.First)
	s.MonolithicDay = len(commits) > 1 && s.Span < 24*time.Hour
	return s
}
