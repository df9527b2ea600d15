// SPDX-FileCopyrightText: 2023 dtn7-go contributors
//
// SPDX-License-Identifier: GPL-3.0-or-later

// Package storage captures received datagrams on disk, backed by badgerhold.
//
// Captured datagrams are kept per peer and can be queried later on, e.g., for debugging an application protocol
// on top of unreliable datagrams. Old records are removed by DeleteOlder.
package storage
