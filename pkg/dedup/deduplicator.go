// Copyright 2025 zhengshuai.xiao@outlook.com
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//	http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
package dedup

import (
	"time"

	"github.com/zhengshuai-xiao/BlockDedup/internal"
)

var now = time.Now

// Stats summarises one deduplication pass.
type Stats struct {
	CountInput       int
	CountUnique      int
	EliminationRatio float64
	Elapsed          time.Duration
	Budget           time.Duration // advisory, zero means none
	OverBudget       bool
}

// EliminationRatio is the fraction of input blocks removed as duplicates,
// 1 - unique/input, and 0 for an empty input.
func EliminationRatio(input, unique int) float64 {
	if input == 0 {
		return 0
	}
	return 1 - float64(unique)/float64(input)
}

// Deduplicator keeps the first occurrence of every distinct block it is fed.
// Blocks are compared by their exact bytes. It is not safe for concurrent use.
type Deduplicator struct {
	seen   *internal.StringSet
	unique []Block
	count  int
	start  time.Time
	budget time.Duration
}

func NewDeduplicator(budget time.Duration) *Deduplicator {
	return &Deduplicator{
		seen:   internal.NewStringSet(),
		unique: []Block{},
		start:  now(),
		budget: budget,
	}
}

// Add records b and reports whether it was seen for the first time.
func (d *Deduplicator) Add(b Block) bool {
	d.count++
	if !d.seen.AddIfAbsent(string(b)) {
		return false
	}
	d.unique = append(d.unique, b)
	return true
}

// Unique returns the distinct blocks in order of first appearance. The
// blocks are the ones passed to Add, not copies.
func (d *Deduplicator) Unique() []Block {
	return d.unique
}

func (d *Deduplicator) Stats() Stats {
	elapsed := now().Sub(d.start)
	return Stats{
		CountInput:       d.count,
		CountUnique:      len(d.unique),
		EliminationRatio: EliminationRatio(d.count, len(d.unique)),
		Elapsed:          elapsed,
		Budget:           d.budget,
		OverBudget:       d.budget > 0 && elapsed > d.budget,
	}
}

// Deduplicate returns each distinct block of blocks once, in order of first
// appearance, together with the pass statistics. It never fails and does not
// modify its input. budget is advisory: exceeding it only sets OverBudget.
func Deduplicate(blocks []Block, budget time.Duration) ([]Block, Stats) {
	d := NewDeduplicator(budget)
	for _, b := range blocks {
		d.Add(b)
	}
	return d.Unique(), d.Stats()
}
