// Package app composes the storefront into a running application.
//
// # Package Structure
//
//	internal/app/
//	├── application.go      # Wiring and lifecycle
//	├── domain/             # Pure data: catalog, cart, order, checkout, account, admin
//	├── store/              # Storefront state container (catalog, cart, checkout, account)
//	├── services/admin/     # Admin console operations with confirmation gates
//	├── storage/            # Storage ports
//	│   ├── memory/         # In-memory implementation for tests and demos
//	│   ├── supabase/       # PostgREST, auth, realtime and storage adapters
//	│   └── redis/          # Cart persistence and product cache
//	├── httpapi/            # HTTP routes, admin middleware and audit log
//	├── jobs/               # Scheduled catalog refresh
//	├── system/             # Service lifecycle manager
//	└── metrics/            # Prometheus collectors
//
// Without Supabase credentials the application starts in disabled mode: the
// store keeps local state only and admin routes answer 503.
package app
