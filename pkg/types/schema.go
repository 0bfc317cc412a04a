package types

// Schema defines the column layout of a table or a snapshot stage.
type Schema struct {
	// Name is the table or stage name
	Name string `json:"name" yaml:"name"`

	// Version tags the layout so snapshot readers can reject foreign files
	Version int `json:"version" yaml:"version"`

	// Columns defines the columns in the schema
	Columns []ColumnDef `json:"columns" yaml:"columns"`

	// Indexes defines the indexes to create on the table
	Indexes []IndexDef `json:"indexes,omitempty" yaml:"indexes,omitempty"`
}

// ColumnDef defines a single column in the schema.
type ColumnDef struct {
	// Name is the column name
	Name string `json:"name" yaml:"name"`

	// Type is the logical SQL type: TEXT, INTEGER, BOOLEAN, TIMESTAMP
	Type string `json:"type" yaml:"type"`

	// Nullable indicates whether the column can contain NULL values
	Nullable bool `json:"nullable" yaml:"nullable"`

	// PrimaryKey indicates whether this column is the surrogate key
	PrimaryKey bool `json:"primary_key" yaml:"primary_key"`

	// References names the dimension table a foreign key column points at
	References string `json:"references,omitempty" yaml:"references,omitempty"`
}

// IndexDef defines an index on a table.
type IndexDef struct {
	// Name is the index name
	Name string `json:"name" yaml:"name"`

	// Columns lists the columns included in the index
	Columns []string `json:"columns" yaml:"columns"`

	// Unique indicates whether the index enforces uniqueness
	Unique bool `json:"unique" yaml:"unique"`
}

// ColumnNames returns the column names in declaration order.
func (s Schema) ColumnNames() []string {
	names := make([]string, len(s.Columns))
	for i, c := range s.Columns {
		names[i] = c.Name
	}
	return names
}
