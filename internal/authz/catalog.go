// Package authz holds the permission catalog and the pure authorization
// decision engine. The catalog is immutable process-local data: every
// permission key, its module grouping, and the per-archetype default grant
// live in the single table below so the defaults stay auditable in one place.
package authz

import "github.com/washpark/washpark/internal/shared"

// Archetype identifies one of the built-in role templates.
type Archetype string

const (
	ArchetypeRoot       Archetype = "root"
	ArchetypeAdmin      Archetype = "admin"
	ArchetypeSupervisor Archetype = "supervisor"
	ArchetypeAccountant Archetype = "accountant"
	ArchetypeCashier    Archetype = "cashier"
	ArchetypeMarketing  Archetype = "marketing"
	ArchetypeOperator   Archetype = "operator"
)

// Archetypes returns all built-in archetypes in privilege order.
func Archetypes() []Archetype {
	return []Archetype{
		ArchetypeRoot,
		ArchetypeAdmin,
		ArchetypeSupervisor,
		ArchetypeAccountant,
		ArchetypeCashier,
		ArchetypeMarketing,
		ArchetypeOperator,
	}
}

// Valid reports whether a is a known archetype.
func (a Archetype) Valid() bool {
	_, ok := archetypeLevels[a]
	return ok
}

// DefaultLevel returns the seeded privilege level for the archetype, or 0
// when the archetype is unknown.
func (a Archetype) DefaultLevel() int {
	return archetypeLevels[a]
}

// RootLevel mirrors the apex privilege level for callers working inside
// this package.
const RootLevel = shared.RootLevel

var archetypeLevels = map[Archetype]int{
	ArchetypeRoot:       RootLevel,
	ArchetypeAdmin:      90,
	ArchetypeSupervisor: 70,
	ArchetypeAccountant: 60,
	ArchetypeCashier:    50,
	ArchetypeMarketing:  40,
	ArchetypeOperator:   30,
}

// Permission keys, grouped per module.
const (
	PermAccountingViewLedger     = "accounting.view_ledger"
	PermAccountingManageCash     = "accounting.manage_cash"
	PermAccountingManageInvoices = "accounting.manage_invoices"
	PermAccountingCloseShift     = "accounting.close_shift"

	PermServicesViewCatalog   = "services.view_catalog"
	PermServicesManageCatalog = "services.manage_catalog"
	PermServicesSetPrices     = "services.set_prices"

	PermStaffView        = "staff.view"
	PermStaffManage      = "staff.manage"
	PermStaffAssignRoles = "staff.assign_roles"

	PermRolesView   = "roles.view"
	PermRolesManage = "roles.manage"

	PermMarketingViewCampaigns   = "marketing.view_campaigns"
	PermMarketingManageCampaigns = "marketing.manage_campaigns"

	PermTenantsManage = "tenants.manage"

	PermReportsView   = "reports.view"
	PermReportsExport = "reports.export"
)

// Permission describes one catalog entry.
type Permission struct {
	Key         string `json:"key"`
	Module      string `json:"module"`
	Action      string `json:"action"`
	Description string `json:"description"`
}

// ModuleGroup bundles the permissions of one module for listing.
type ModuleGroup struct {
	Module      string       `json:"module"`
	Permissions []Permission `json:"permissions"`
}

type catalogEntry struct {
	key         string
	module      string
	action      string
	description string
	defaults    map[Archetype]bool
}

// grants builds a default map granting the listed archetypes. Root is always
// granted; it never appears in the argument lists below.
func grants(to ...Archetype) map[Archetype]bool {
	m := map[Archetype]bool{ArchetypeRoot: true}
	for _, a := range to {
		m[a] = true
	}
	return m
}

// catalog is the single source of truth for permission keys and archetype
// defaults. Order here is the listing order (already grouped by module).
var catalog = []catalogEntry{
	{PermAccountingViewLedger, "accounting", "view_ledger", "Read ledgers and daily totals", grants(ArchetypeAdmin, ArchetypeSupervisor, ArchetypeAccountant)},
	{PermAccountingManageCash, "accounting", "manage_cash", "Open, adjust and reconcile cash registers", grants(ArchetypeAdmin, ArchetypeSupervisor, ArchetypeCashier)},
	{PermAccountingManageInvoices, "accounting", "manage_invoices", "Create and void invoices", grants(ArchetypeAdmin, ArchetypeAccountant)},
	{PermAccountingCloseShift, "accounting", "close_shift", "Close a register shift", grants(ArchetypeAdmin, ArchetypeSupervisor, ArchetypeCashier)},

	{PermServicesViewCatalog, "services", "view_catalog", "Browse the wash service catalog", grants(ArchetypeAdmin, ArchetypeSupervisor, ArchetypeAccountant, ArchetypeCashier, ArchetypeMarketing, ArchetypeOperator)},
	{PermServicesManageCatalog, "services", "manage_catalog", "Create and edit wash services", grants(ArchetypeAdmin, ArchetypeSupervisor)},
	{PermServicesSetPrices, "services", "set_prices", "Change service pricing", grants(ArchetypeAdmin)},

	{PermStaffView, "staff", "view", "List staff members", grants(ArchetypeAdmin, ArchetypeSupervisor)},
	{PermStaffManage, "staff", "manage", "Create, edit and deactivate staff", grants(ArchetypeAdmin)},
	{PermStaffAssignRoles, "staff", "assign_roles", "Assign roles to staff", grants(ArchetypeAdmin)},

	{PermRolesView, "roles", "view", "List roles and their permissions", grants(ArchetypeAdmin, ArchetypeSupervisor)},
	{PermRolesManage, "roles", "manage", "Create, edit and delete roles", grants(ArchetypeAdmin)},

	{PermMarketingViewCampaigns, "marketing", "view_campaigns", "View promotional campaigns", grants(ArchetypeAdmin, ArchetypeMarketing)},
	{PermMarketingManageCampaigns, "marketing", "manage_campaigns", "Create and edit promotional campaigns", grants(ArchetypeAdmin, ArchetypeMarketing)},

	{PermTenantsManage, "tenants", "manage", "Manage tenant companies", grants()},

	{PermReportsView, "reports", "view", "View operational reports", grants(ArchetypeAdmin, ArchetypeSupervisor, ArchetypeAccountant, ArchetypeMarketing)},
	{PermReportsExport, "reports", "export", "Export reports", grants(ArchetypeAdmin, ArchetypeAccountant)},
}

var catalogByKey = func() map[string]catalogEntry {
	m := make(map[string]catalogEntry, len(catalog))
	for _, e := range catalog {
		m[e.key] = e
	}
	return m
}()

// Catalog returns every permission in declaration order.
func Catalog() []Permission {
	perms := make([]Permission, 0, len(catalog))
	for _, e := range catalog {
		perms = append(perms, Permission{Key: e.key, Module: e.module, Action: e.action, Description: e.description})
	}
	return perms
}

// CatalogByModule returns the catalog grouped by module, preserving
// declaration order of both modules and permissions.
func CatalogByModule() []ModuleGroup {
	var groups []ModuleGroup
	index := make(map[string]int)
	for _, e := range catalog {
		perm := Permission{Key: e.key, Module: e.module, Action: e.action, Description: e.description}
		if i, ok := index[e.module]; ok {
			groups[i].Permissions = append(groups[i].Permissions, perm)
			continue
		}
		index[e.module] = len(groups)
		groups = append(groups, ModuleGroup{Module: e.module, Permissions: []Permission{perm}})
	}
	return groups
}

// Known reports whether key is a catalog permission.
func Known(key string) bool {
	_, ok := catalogByKey[key]
	return ok
}

// DefaultGrant returns the archetype default for a permission key. Unknown
// keys and unknown archetypes default to false.
func DefaultGrant(a Archetype, key string) bool {
	e, ok := catalogByKey[key]
	if !ok {
		return false
	}
	return e.defaults[a]
}
