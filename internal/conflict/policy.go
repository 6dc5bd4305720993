package conflict

import (
	"fmt"
	"os"
	"sort"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"commerce-sync-engine/internal/domain"
)

// DefaultEntity keys the fallback source priority list.
const DefaultEntity domain.EntityType = "default"

// Policy configures cross-platform conflict handling.
type Policy struct {
	RecencyWindow        time.Duration
	PrimaryCatalogSource string
	SourcePriority       map[domain.EntityType][]string
	SensitiveFields      map[domain.EntityType][]string
	Validation           map[domain.EntityType]map[string]string
}

type policyFile struct {
	RecencyWindow        string                       `yaml:"recency_window"`
	PrimaryCatalogSource string                       `yaml:"primary_catalog_source"`
	SourcePriority       map[string][]string          `yaml:"source_priority"`
	SensitiveFields      map[string][]string          `yaml:"sensitive_fields"`
	Validation           map[string]map[string]string `yaml:"validation"`
}

func DefaultPolicy() Policy {
	return Policy{
		RecencyWindow:        5 * time.Minute,
		PrimaryCatalogSource: "shopify",
		SourcePriority: map[domain.EntityType][]string{
			DefaultEntity: {"shopify", "woocommerce", "magento", "custom"},
		},
		SensitiveFields: map[domain.EntityType][]string{
			domain.EntityCustomer: {
				"email", "phone", "first_name", "last_name", "name",
				"tax_id", "billing_address", "payment_method", "date_of_birth",
			},
			domain.EntityOrder: {
				"total", "subtotal", "tax", "currency", "amount", "discount",
				"payment_status", "refund_amount", "customer_id", "billing_address",
			},
		},
		Validation: map[domain.EntityType]map[string]string{
			domain.EntityProduct: {
				"price":     "gte=0",
				"inventory": "gte=0",
				"title":     "min=1",
			},
			domain.EntityCustomer: {
				"email": "email",
			},
			domain.EntityOrder: {
				"total": "gte=0",
			},
		},
	}
}

// ParsePolicy overlays a YAML document on the default policy. Sections present
// in the document replace the matching default section entirely.
func ParsePolicy(data []byte) (Policy, error) {
	p := DefaultPolicy()

	var f policyFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return p, fmt.Errorf("invalid conflict policy: %w", err)
	}

	if f.RecencyWindow != "" {
		d, err := time.ParseDuration(f.RecencyWindow)
		if err != nil {
			return p, fmt.Errorf("invalid recency_window: %w", err)
		}
		if d < 0 {
			return p, fmt.Errorf("invalid recency_window: must not be negative")
		}
		p.RecencyWindow = d
	}
	if f.PrimaryCatalogSource != "" {
		p.PrimaryCatalogSource = f.PrimaryCatalogSource
	}
	if f.SourcePriority != nil {
		p.SourcePriority = make(map[domain.EntityType][]string, len(f.SourcePriority))
		for entity, platforms := range f.SourcePriority {
			p.SourcePriority[domain.EntityType(entity)] = platforms
		}
	}
	if f.SensitiveFields != nil {
		p.SensitiveFields = make(map[domain.EntityType][]string, len(f.SensitiveFields))
		for entity, fields := range f.SensitiveFields {
			p.SensitiveFields[domain.EntityType(entity)] = fields
		}
	}
	if f.Validation != nil {
		p.Validation = make(map[domain.EntityType]map[string]string, len(f.Validation))
		for entity, rules := range f.Validation {
			p.Validation[domain.EntityType(entity)] = rules
		}
	}

	if err := p.checkRules(); err != nil {
		return p, err
	}
	return p, nil
}

func LoadPolicy(path string) (Policy, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return DefaultPolicy(), fmt.Errorf("failed to read conflict policy: %w", err)
	}
	return ParsePolicy(data)
}

// checkRules rejects validator tags the validator does not know.
func (p Policy) checkRules() error {
	v := validator.New()
	entities := make([]string, 0, len(p.Validation))
	for entity := range p.Validation {
		entities = append(entities, string(entity))
	}
	sort.Strings(entities)

	for _, entity := range entities {
		for field, tag := range p.Validation[domain.EntityType(entity)] {
			if err := checkTag(v, tag); err != nil {
				return fmt.Errorf("invalid validation rule %s.%s: %w", entity, field, err)
			}
		}
	}
	return nil
}

func checkTag(v *validator.Validate, tag string) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%v", r)
		}
	}()
	_ = v.Var("", tag)
	return nil
}

// priorityList returns the ordered platforms for an entity, primary catalog
// source first for products.
func (p Policy) priorityList(entity domain.EntityType) []string {
	list, ok := p.SourcePriority[entity]
	if !ok {
		list = p.SourcePriority[DefaultEntity]
	}
	if entity != domain.EntityProduct || p.PrimaryCatalogSource == "" {
		return list
	}

	out := make([]string, 0, len(list)+1)
	out = append(out, p.PrimaryCatalogSource)
	for _, platform := range list {
		if platform != p.PrimaryCatalogSource {
			out = append(out, platform)
		}
	}
	return out
}

// rank is the platform's position in the priority list. Unknown platforms rank last.
func (p Policy) rank(entity domain.EntityType, platform string) int {
	list := p.priorityList(entity)
	for i, candidate := range list {
		if candidate == platform {
			return i
		}
	}
	return len(list)
}

func (p Policy) isSensitive(entity domain.EntityType, field string) bool {
	for _, f := range p.SensitiveFields[entity] {
		if f == field {
			return true
		}
	}
	return false
}
