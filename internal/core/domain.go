package core

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"
	"unicode/utf8"
)

const (
	Income  TransactionType = "income"
	Expense TransactionType = "expense"
)

const (
	Monthly BudgetPeriod = "monthly"
	Yearly  BudgetPeriod = "yearly"
)

const (
	DefaultCategoryColor = "#3B82F6"
	DefaultCategoryIcon  = "💰"
	UncategorizedName    = "Uncategorized"
)

const (
	maxCategoryName = 50
	maxCategoryIcon = 10
	maxDescription  = 200
	maxNotes        = 500
	dateLayout      = "2006-01-02"
)

type (
	TransactionType string
	BudgetPeriod    string

	// CategoryRef is the category data joined onto transactions and budgets.
	CategoryRef struct {
		ID    int64           `json:"id"`
		Name  string          `json:"name"`
		Type  TransactionType `json:"type,omitempty"`
		Color string          `json:"color"`
		Icon  string          `json:"icon"`
	}

	Category struct {
		ID        int64           `json:"id"`
		Name      string          `json:"name"`
		Type      TransactionType `json:"type"`
		Color     string          `json:"color"`
		Icon      string          `json:"icon"`
		CreatedAt time.Time       `json:"created_at"`
	}

	Transaction struct {
		ID          int64           `json:"id"`
		Description string          `json:"description"`
		Amount      Money           `json:"amount"`
		Type        TransactionType `json:"type"`
		CategoryID  *int64          `json:"category_id"`
		Date        Date            `json:"date"`
		Notes       string          `json:"notes"`
		Version     int64           `json:"version"`
		CreatedAt   time.Time       `json:"created_at"`
		UpdatedAt   time.Time       `json:"updated_at"`
		Category    *CategoryRef    `json:"category,omitempty"`
	}

	Budget struct {
		ID         int64        `json:"id"`
		CategoryID int64        `json:"category_id"`
		Amount     Money        `json:"amount"`
		Period     BudgetPeriod `json:"period"`
		StartDate  Date         `json:"start_date"`
		EndDate    *Date        `json:"end_date"`
		IsActive   bool         `json:"is_active"`
		CreatedAt  time.Time    `json:"created_at"`
		Category   *CategoryRef `json:"category,omitempty"`
	}
)

var (
	ErrNotFound         = errors.New("not found")
	ErrConflict         = errors.New("conflict")
	ErrCategoryInUse    = errors.New("category is used by existing transactions")
	ErrInvalidAmount    = errors.New("invalid amount")
	ErrEmptyDescription = errors.New("description is required")
	ErrInvalidDate      = errors.New("invalid date")
)

var hexColor = regexp.MustCompile(`^#[0-9A-Fa-f]{6}$`)

// ValidationError reports input that the API must reject with a 400.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Message
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// Invalid builds a ValidationError for field.
func Invalid(field, format string, args ...any) error {
	return &ValidationError{Field: field, Message: fmt.Sprintf(format, args...)}
}

// IsValidation reports whether err is (or wraps) a ValidationError.
func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

func (t TransactionType) Valid() bool {
	return t == Income || t == Expense
}

func (p BudgetPeriod) Valid() bool {
	return p == Monthly || p == Yearly
}

// Normalize fills in the display defaults and trims user input.
func (c *Category) Normalize() {
	c.Name = strings.TrimSpace(c.Name)
	c.Color = strings.TrimSpace(c.Color)
	c.Icon = strings.TrimSpace(c.Icon)
	if c.Color == "" {
		c.Color = DefaultCategoryColor
	}
	if c.Icon == "" {
		c.Icon = DefaultCategoryIcon
	}
}

func (c Category) Validate() error {
	if c.Name == "" {
		return Invalid("name", "is required")
	}
	if utf8.RuneCountInString(c.Name) > maxCategoryName {
		return Invalid("name", "too long (max %d characters)", maxCategoryName)
	}
	if !c.Type.Valid() {
		return Invalid("type", "must be either income or expense")
	}
	if !hexColor.MatchString(c.Color) {
		return Invalid("color", "must be a hex color like #3B82F6")
	}
	if utf8.RuneCountInString(c.Icon) > maxCategoryIcon {
		return Invalid("icon", "too long (max %d characters)", maxCategoryIcon)
	}
	return nil
}

// Ref returns the joined view of c.
func (c Category) Ref() *CategoryRef {
	return &CategoryRef{ID: c.ID, Name: c.Name, Type: c.Type, Color: c.Color, Icon: c.Icon}
}

func (t *Transaction) Normalize() {
	t.Description = strings.TrimSpace(t.Description)
	t.Notes = strings.TrimSpace(t.Notes)
}

func (t Transaction) Validate() error {
	if t.Description == "" {
		return &ValidationError{Field: "description", Message: ErrEmptyDescription.Error()}
	}
	if utf8.RuneCountInString(t.Description) > maxDescription {
		return Invalid("description", "too long (max %d characters)", maxDescription)
	}
	if err := t.Amount.Validate(); err != nil {
		return Invalid("amount", "must be greater than 0")
	}
	if !t.Type.Valid() {
		return Invalid("type", "must be either income or expense")
	}
	if err := t.Date.Validate(); err != nil {
		return Invalid("date", "is required")
	}
	if utf8.RuneCountInString(t.Notes) > maxNotes {
		return Invalid("notes", "too long (max %d characters)", maxNotes)
	}
	return nil
}

func (b Budget) Validate() error {
	if err := b.Amount.Validate(); err != nil {
		return Invalid("amount", "must be greater than 0")
	}
	if !b.Period.Valid() {
		return Invalid("period", "must be either monthly or yearly")
	}
	if err := b.StartDate.Validate(); err != nil {
		return Invalid("start_date", "is required")
	}
	if b.EndDate != nil && !b.EndDate.IsZero() && b.EndDate.Before(b.StartDate.Time) {
		return Invalid("end_date", "must not be before start_date")
	}
	return nil
}

// DefaultCategories is the starter set inserted into a fresh database.
func DefaultCategories() []Category {
	return []Category{
		{Name: "Salary", Type: Income, Color: "#10B981", Icon: "💼"},
		{Name: "Freelance", Type: Income, Color: "#F59E0B", Icon: "💻"},
		{Name: "Investment", Type: Income, Color: "#8B5CF6", Icon: "📈"},
		{Name: "Food & Dining", Type: Expense, Color: "#EF4444", Icon: "🍽️"},
		{Name: "Transportation", Type: Expense, Color: "#06B6D4", Icon: "🚗"},
		{Name: "Shopping", Type: Expense, Color: "#EC4899", Icon: "🛍️"},
		{Name: "Entertainment", Type: Expense, Color: "#F97316", Icon: "🎬"},
		{Name: "Healthcare", Type: Expense, Color: "#84CC16", Icon: "🏥"},
		{Name: "Utilities", Type: Expense, Color: "#6366F1", Icon: "⚡"},
		{Name: "Rent/Mortgage", Type: Expense, Color: "#A855F7", Icon: "🏠"},
	}
}
