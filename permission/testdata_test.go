package permission

import "testing"

func testDefinition() Definition {
	return Definition{
		Resources: map[string]string{
			"employee": "hr",
			"leave":    "hr",
			"invoice":  "finance",
			"role":     "admin",
		},
		DefaultRole: "employee",
		Roles: []Role{
			{
				ID: "admin", Name: "Administrator", Level: 100,
				Modules: []string{"hr", "finance", "admin"},
				Permissions: []Permission{
					{Action: "read", Resource: "employee"},
					{Action: "manage", Resource: "role"},
				},
			},
			{
				ID: "manager", Name: "Manager", Level: 50,
				Modules: []string{"hr"},
				Permissions: []Permission{
					{Action: "read", Resource: "employee", Scope: ScopeDepartment},
					{Action: "approve", Resource: "leave", Scope: ScopeTeam},
				},
			},
			{
				ID: "employee", Name: "Employee", Level: 10,
				Modules: []string{"hr"},
				Permissions: []Permission{
					{Action: "read", Resource: "employee", Scope: ScopeOwn},
					{Action: "create", Resource: "leave", Scope: ScopeOwn},
				},
			},
		},
	}
}

func mustConfig(t *testing.T) *Config {
	t.Helper()
	cfg, err := NewConfig(testDefinition())
	if err != nil {
		t.Fatalf("NewConfig: %v", err)
	}
	return cfg
}
