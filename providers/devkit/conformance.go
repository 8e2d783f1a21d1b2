package devkit

import (
	"context"
	"fmt"
	"strings"

	"github.com/goliatone/go-socialengine/core"
)

var knownFields = []core.FieldFlag{
	core.FieldID,
	core.FieldName,
	core.FieldFirstName,
	core.FieldLastName,
	core.FieldEmail,
	core.FieldHeadline,
	core.FieldPictureURL,
	core.FieldProfileURL,
	core.FieldLocation,
	core.FieldIndustry,
	core.FieldSummary,
	core.FieldUsername,
	core.FieldLocale,
}

// ValidateModuleConformance checks the parts of the module contract that
// can be exercised without a live provider.
func ValidateModuleConformance(ctx context.Context, module core.ProviderModule) error {
	if module == nil {
		return fmt.Errorf("devkit: provider module is required")
	}
	id := module.ID()
	if strings.TrimSpace(id) == "" {
		return fmt.Errorf("devkit: provider id is required")
	}
	if id != strings.ToLower(strings.TrimSpace(id)) {
		return fmt.Errorf("devkit: provider id %q must be lower case and trimmed", id)
	}

	scopes := module.SupportedScopes()
	if len(scopes) == 0 {
		return fmt.Errorf("devkit: provider %q must support at least one scope", id)
	}
	hasDefault := false
	for _, scope := range scopes {
		if !scope.IsValid() {
			return fmt.Errorf("devkit: provider %q declares invalid scope %q", id, scope)
		}
		if scope == core.ScopeDefault {
			hasDefault = true
		}
	}
	if !hasDefault {
		return fmt.Errorf("devkit: provider %q must support the default scope", id)
	}

	fields := module.SupportedFields()
	if fields.IsEmpty() {
		return fmt.Errorf("devkit: provider %q must support at least one field", id)
	}
	if mapper, ok := module.(core.FieldMapper); ok {
		for flag := range mapper.FieldMapping() {
			if !fields.Has(flag) {
				return fmt.Errorf("devkit: provider %q maps unsupported field %q", id, flag)
			}
		}
	}

	if err := module.Configure(ctx, core.ProviderConfig{Scope: core.ScopeDefault, RequestedFields: fields}); err != nil {
		return fmt.Errorf("devkit: provider %q rejected its own supported fields: %w", id, err)
	}
	if unsupported := core.NewFieldSet(knownFields...).Difference(fields); !unsupported.IsEmpty() {
		cfg := core.ProviderConfig{Scope: core.ScopeDefault, RequestedFields: unsupported}
		if err := module.Configure(ctx, cfg); err == nil {
			return fmt.Errorf("devkit: provider %q accepted unsupported fields %s", id, unsupported)
		}
	}

	if err := module.Cancel(ctx, "devkit-no-such-attempt"); err != nil {
		return fmt.Errorf("devkit: cancel without a pending attempt must be a no-op: %w", err)
	}
	return nil
}
