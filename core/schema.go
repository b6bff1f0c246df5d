//
// SPDX-License-Identifier: GPL-3.0-or-later
//
// Copyright (C) 2025 Aaron Mathis aaron.mathis@gmail.com
//
// This file is part of GoETL Mobility.
//
// GoETL Mobility is free software: you can redistribute it and/or modify
// it under the terms of the GNU General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// GoETL Mobility is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU General Public License for more details.
//
// You should have received a copy of the GNU General Public License
// along with GoETL Mobility. If not, see https://www.gnu.org/licenses/.

package core

import (
	"fmt"
	"strings"
)

// FieldType is the logical column type of a schema field.
type FieldType string

const (
	TypeString  FieldType = "STRING"
	TypeInteger FieldType = "INTEGER"
	TypeDate    FieldType = "DATE"
)

// Field describes one column of a table schema.
type Field struct {
	Name     string
	Type     FieldType
	Required bool
}

// Schema is an ordered list of fields. Writers use it to create tables and
// to fix column order on output.
type Schema []Field

// Columns returns the field names in schema order.
func (s Schema) Columns() []string {
	cols := make([]string, len(s))
	for i, f := range s {
		cols[i] = f.Name
	}
	return cols
}

// Lookup returns the field with the given name.
func (s Schema) Lookup(name string) (Field, bool) {
	for _, f := range s {
		if f.Name == name {
			return f, true
		}
	}
	return Field{}, false
}

// String renders the schema in NAME:TYPE form, e.g. "code:STRING, date:DATE".
func (s Schema) String() string {
	parts := make([]string, len(s))
	for i, f := range s {
		parts[i] = fmt.Sprintf("%s:%s", f.Name, f.Type)
	}
	return strings.Join(parts, ", ")
}

// ParseSchema parses the NAME:TYPE form produced by Schema.String.
func ParseSchema(spec string) (Schema, error) {
	var schema Schema
	for _, part := range strings.Split(spec, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		name, typ, ok := strings.Cut(part, ":")
		if !ok {
			return nil, fmt.Errorf("schema field %q: missing type", part)
		}
		ft := FieldType(strings.ToUpper(strings.TrimSpace(typ)))
		switch ft {
		case TypeString, TypeInteger, TypeDate:
		default:
			return nil, fmt.Errorf("schema field %q: unsupported type %s", part, typ)
		}
		schema = append(schema, Field{Name: strings.TrimSpace(name), Type: ft})
	}
	if len(schema) == 0 {
		return nil, fmt.Errorf("empty schema")
	}
	return schema, nil
}
