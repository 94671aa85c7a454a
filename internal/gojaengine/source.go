package gojaengine

import (
	"strings"
	"sync"
	"unicode/utf8"
)

// script 已加载脚本的源码及每行的起始字符偏移
type script struct {
	lines       []string
	lineOffsets []int
}

func newScript(src string) *script {
	lines := strings.Split(src, "\n")
	offsets := make([]int, len(lines))
	pos := 0
	for i, line := range lines {
		offsets[i] = pos
		pos += utf8.RuneCountInString(line) + 1
		lines[i] = strings.TrimSuffix(line, "\r")
	}
	return &script{lines: lines, lineOffsets: offsets}
}

// line 返回第 n 行（从 1 开始）
func (s *script) line(n int) (string, bool) {
	if n < 1 || n > len(s.lines) {
		return "", false
	}
	return s.lines[n-1], true
}

// offset 把行列（均从 1 开始）换算为字符偏移
func (s *script) offset(line, column int) (int, bool) {
	text, ok := s.line(line)
	if !ok || column < 1 || column-1 > utf8.RuneCountInString(text) {
		return 0, false
	}
	return s.lineOffsets[line-1] + column - 1, true
}

// runeColumn 把引擎给出的字节列（从 1 开始）换算为字符列（从 1 开始）
func (s *script) runeColumn(line, byteColumn int) (int, bool) {
	text, ok := s.line(line)
	if !ok || byteColumn < 1 || byteColumn-1 > len(text) {
		return 0, false
	}
	return utf8.RuneCountInString(text[:byteColumn-1]) + 1, true
}

// sourceSet 按脚本名保存源码，用于解析源码行和字符偏移
type sourceSet struct {
	mu      sync.RWMutex
	scripts map[string]*script
}

func newSourceSet() *sourceSet {
	return &sourceSet{scripts: make(map[string]*script)}
}

func (s *sourceSet) add(name, src string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.scripts[name] = newScript(src)
}

func (s *sourceSet) get(name string) (*script, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sc, ok := s.scripts[name]
	return sc, ok
}
