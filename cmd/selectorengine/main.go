// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Command selectorengine is the operator-facing entry point for the
// retrieval-and-ranking core: an HTTP server exposing retrieve/report_outcome
// to a browser/snapshot collaborator, plus inspection and benchmarking
// tooling for the engine's two BadgerDB-backed stores.
//
// Usage:
//
//	selectorengine serve --port 8090
//	selectorengine cache inspect
//	selectorengine promotions inspect
//	selectorengine bench --fixture testdata/bench_snapshot.json
package main

func main() {
	Execute()
}
