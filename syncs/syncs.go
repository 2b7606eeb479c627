// Copyright (c) Tailscale Inc & AUTHORS
// SPDX-License-Identifier: BSD-3-Clause

// Package syncs contains the blocking lock used by the hosted mutex and the
// hosted critical-section providers.
package syncs
