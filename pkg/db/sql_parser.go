/*
 * Copyright 2025 Carver Automation Corporation.
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package db

import (
	"strings"
	"unicode"
)

// splitSQLStatements breaks a migration file into executable statements.
// Semicolons inside quotes, comments and dollar-quoted bodies do not split.
func splitSQLStatements(content string) []string {
	s := &sqlScanner{src: content}

	for s.pos < len(s.src) {
		s.step()
	}

	s.flush()

	return s.statements
}

type sqlScanner struct {
	src        string
	pos        int
	current    strings.Builder
	statements []string

	singleQuote bool
	doubleQuote bool
	dollarTag   string
}

func (s *sqlScanner) peek(prefix string) bool {
	return strings.HasPrefix(s.src[s.pos:], prefix)
}

func (s *sqlScanner) emit(n int) {
	s.current.WriteString(s.src[s.pos : s.pos+n])
	s.pos += n
}

func (s *sqlScanner) flush() {
	if stmt := strings.TrimSpace(s.current.String()); stmt != "" {
		s.statements = append(s.statements, stmt)
	}

	s.current.Reset()
}

func (s *sqlScanner) step() {
	if s.dollarTag != "" {
		if s.peek(s.dollarTag) {
			n := len(s.dollarTag)
			s.dollarTag = ""
			s.emit(n)

			return
		}

		s.emit(1)

		return
	}

	quoted := s.singleQuote || s.doubleQuote

	switch {
	case !quoted && s.peek("--"):
		s.skipUntil("\n", false)
	case !quoted && s.peek("/*"):
		s.skipUntil("*/", true)
	case !quoted && s.src[s.pos] == '$':
		if tag := dollarTag(s.src[s.pos:]); tag != "" {
			s.dollarTag = tag
			s.emit(len(tag))

			return
		}

		s.emit(1)
	case !s.doubleQuote && s.src[s.pos] == '\'':
		s.singleQuote = !s.singleQuote
		s.emit(1)
	case !s.singleQuote && s.src[s.pos] == '"':
		s.doubleQuote = !s.doubleQuote
		s.emit(1)
	case !quoted && s.src[s.pos] == ';':
		s.pos++
		s.flush()
	default:
		s.emit(1)
	}
}

// skipUntil drops input up to terminator. Line comments keep their newline.
func (s *sqlScanner) skipUntil(terminator string, consume bool) {
	idx := strings.Index(s.src[s.pos:], terminator)
	if idx < 0 {
		s.pos = len(s.src)
		return
	}

	s.pos += idx
	if consume {
		s.pos += len(terminator)
	}
}

func dollarTag(content string) string {
	for i := 1; i < len(content); i++ {
		ch := content[i]
		if ch == '$' {
			return content[:i+1]
		}

		if ch != '_' && !unicode.IsLetter(rune(ch)) && !unicode.IsDigit(rune(ch)) {
			return ""
		}
	}

	return ""
}

// extractVersion returns the numeric prefix of a migration filename.
func extractVersion(filename string) string {
	version, _, _ := strings.Cut(filename, "_")
	return version
}
