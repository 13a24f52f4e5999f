// Copyright 2025 Vinay Kumar
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"fmt"
)

func main() {
	fmt.Println("🚀 smriti-sync - Offline Post Queue & Batch Sync Library")
	fmt.Println("========================================================")
	fmt.Println()
	fmt.Println("smriti-sync keeps posts captured offline in a durable local queue and")
	fmt.Println("drains them to the backend in batches once connectivity returns, with")
	fmt.Println("retry classification, exponential backoff and cancellation-safe runs.")
	fmt.Println()

	fmt.Println("📚 Packages:")
	fmt.Println()
	fmt.Println("1. 📦 postqueue - Durable offline queue")
	fmt.Println("   Mutex-guarded queue over a key-value store (SQLite or in-memory)")
	fmt.Println("   Features: validation, corruption self-healing, status tracking")
	fmt.Println()

	fmt.Println("2. 🌐 syncapi - Batch API client")
	fmt.Println("   HTTP client for the posts batch endpoint and the health ping")
	fmt.Println("   Features: JWT bearer auth, circuit breaker, per-item results")
	fmt.Println()

	fmt.Println("3. 🔄 postsync - Sync engine, network monitor, orchestrator")
	fmt.Println("   Batch drain with transient/permanent error classification")
	fmt.Println("   Features: debounced connectivity, trigger policy, progress events")
	fmt.Println()

	fmt.Println("▶️  Example:")
	fmt.Println()
	fmt.Println("   💾 Offline Flow (examples/offline_flow/)")
	fmt.Println("   End-to-end demo: queue posts offline, restore the network, watch")
	fmt.Println("   the orchestrator drain the queue against a local test server")
	fmt.Println("   Run: cd examples/offline_flow && go run .")
	fmt.Println()
}
