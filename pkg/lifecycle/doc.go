// Package lifecycle owns the versioned cache namespaces.
//
// Each version tag maps to three namespaces named <prefix>-<kind>-<version>
// (kinds shell, metadata and payload). A version moves through two steps:
//
//  1. Install fetches the whole shell manifest. Any failure leaves no
//     namespace behind and the version cannot be activated.
//  2. Activate drops every namespace that does not belong to the version,
//     opens its three namespaces and publishes them for request handling.
//
// Example usage:
//
//	mgr, err := lifecycle.New(lifecycle.DefaultConfig(store, classifier, "v3"))
//	if err != nil {
//		return err
//	}
//	if err := mgr.Install(ctx); err != nil {
//		return err
//	}
//	if err := mgr.Activate(ctx); err != nil {
//		return err
//	}
//	ns, _ := mgr.Current()
package lifecycle
