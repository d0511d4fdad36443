package tables

import "github.com/JonMunkholm/mapexport/internal/core"

func init() {
	registerCrmContacts()
	registerCrmAccounts()
}

func registerCrmContacts() {
	core.Register(core.TargetSchema{
		Key:         "crm_contacts",
		Group:       "CRM",
		Label:       "Contacts",
		Description: "People records for a CRM contact import",
		Columns: []core.TargetColumn{
			{Name: "First Name"},
			{Name: "Last Name", Required: true},
			{Name: "Email", Required: true},
			{Name: "Phone", Description: "Formatted as (AAA) BBB-CCCC"},
			{Name: "Company"},
			{Name: "Title"},
			{Name: "Street"},
			{Name: "City"},
			{Name: "State", Description: "Two-letter US state code"},
			{Name: "Postal Code"},
			{Name: "Country"},
			{Name: "Opt In", Description: "true or false"},
		},
	})
}

func registerCrmAccounts() {
	core.Register(core.TargetSchema{
		Key:   "crm_accounts",
		Group: "CRM",
		Label: "Accounts",
		Columns: []core.TargetColumn{
			{Name: "Account Name", Required: true},
			{Name: "Account Number"},
			{Name: "Industry"},
			{Name: "Website"},
			{Name: "Phone"},
			{Name: "Billing City"},
			{Name: "Billing State"},
			{Name: "Annual Revenue"},
		},
	})
}
