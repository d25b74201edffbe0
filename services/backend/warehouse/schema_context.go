// Copyright (C) 2025 eulerianKnight
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package warehouse

import "strings"

// ForeignKey links a local column to a referenced TABLE.COLUMN.
type ForeignKey struct {
	Column string
	Ref    string
}

// TableSchema is the curated description of one warehouse table, used to
// ground text-to-SQL prompts without a round trip to INFORMATION_SCHEMA.
type TableSchema struct {
	Name        string
	Description string
	Columns     []string
	PrimaryKey  []string
	ForeignKeys []ForeignKey
}

// tpchTables describes the TPC-H supply chain schema the analytics API
// serves. Order matters: it is the rendering order of SchemaContext.
var tpchTables = []TableSchema{
	{
		Name:        "PART",
		Description: "Parts catalog with specifications and pricing",
		Columns: []string{"PARTKEY", "NAME", "MFGR", "BRAND", "TYPE", "SIZE",
			"CONTAINER", "RETAILPRICE", "COMMENT"},
		PrimaryKey: []string{"PARTKEY"},
	},
	{
		Name:        "SUPPLIER",
		Description: "Supplier information and contact details",
		Columns: []string{"SUPPKEY", "NAME", "ADDRESS", "NATIONKEY", "PHONE",
			"ACCTBAL", "COMMENT"},
		PrimaryKey:  []string{"SUPPKEY"},
		ForeignKeys: []ForeignKey{{Column: "NATIONKEY", Ref: "NATION.NATIONKEY"}},
	},
	{
		Name:        "PARTSUPP",
		Description: "Part-supplier relationships with availability and costs",
		Columns:     []string{"PARTKEY", "SUPPKEY", "AVAILQTY", "SUPPLYCOST", "COMMENT"},
		PrimaryKey:  []string{"PARTKEY", "SUPPKEY"},
		ForeignKeys: []ForeignKey{
			{Column: "PARTKEY", Ref: "PART.PARTKEY"},
			{Column: "SUPPKEY", Ref: "SUPPLIER.SUPPKEY"},
		},
	},
	{
		Name:        "CUSTOMER",
		Description: "Customer information and market segmentation",
		Columns: []string{"CUSTKEY", "NAME", "ADDRESS", "NATIONKEY", "PHONE",
			"ACCTBAL", "MKTSEGMENT", "COMMENT"},
		PrimaryKey:  []string{"CUSTKEY"},
		ForeignKeys: []ForeignKey{{Column: "NATIONKEY", Ref: "NATION.NATIONKEY"}},
	},
	{
		Name:        "ORDERS",
		Description: "Order header information",
		Columns: []string{"ORDERKEY", "CUSTKEY", "ORDERSTATUS", "TOTALPRICE",
			"ORDERDATE", "ORDERPRIORITY", "CLERK", "SHIPPRIORITY", "COMMENT"},
		PrimaryKey:  []string{"ORDERKEY"},
		ForeignKeys: []ForeignKey{{Column: "CUSTKEY", Ref: "CUSTOMER.CUSTKEY"}},
	},
	{
		Name:        "LINEITEM",
		Description: "Detailed line items for each order (6M+ rows)",
		Columns: []string{"ORDERKEY", "PARTKEY", "SUPPKEY", "LINENUMBER",
			"QUANTITY", "EXTENDEDPRICE", "DISCOUNT", "TAX", "RETURNFLAG",
			"LINESTATUS", "SHIPDATE", "COMMITDATE", "RECEIPTDATE",
			"SHIPINSTRUCT", "SHIPMODE", "COMMENT"},
		PrimaryKey: []string{"ORDERKEY", "LINENUMBER"},
		ForeignKeys: []ForeignKey{
			{Column: "ORDERKEY", Ref: "ORDERS.ORDERKEY"},
			{Column: "PARTKEY", Ref: "PART.PARTKEY"},
			{Column: "SUPPKEY", Ref: "SUPPLIER.SUPPKEY"},
		},
	},
	{
		Name:        "NATION",
		Description: "Nation/country reference data",
		Columns:     []string{"NATIONKEY", "NAME", "REGIONKEY", "COMMENT"},
		PrimaryKey:  []string{"NATIONKEY"},
		ForeignKeys: []ForeignKey{{Column: "REGIONKEY", Ref: "REGION.REGIONKEY"}},
	},
	{
		Name:        "REGION",
		Description: "Geographic regions",
		Columns:     []string{"REGIONKEY", "NAME", "COMMENT"},
		PrimaryKey:  []string{"REGIONKEY"},
	},
}

var tpchRelationships = []string{
	"SUPPLIER -> NATION (via NATIONKEY)",
	"CUSTOMER -> NATION (via NATIONKEY)",
	"NATION -> REGION (via REGIONKEY)",
	"ORDERS -> CUSTOMER (via CUSTKEY)",
	"LINEITEM -> ORDERS (via ORDERKEY)",
	"LINEITEM -> PART (via PARTKEY)",
	"LINEITEM -> SUPPLIER (via SUPPKEY)",
	"PARTSUPP -> PART (via PARTKEY)",
	"PARTSUPP -> SUPPLIER (via SUPPKEY)",
}

var tpchCommonQueries = []string{
	"Supplier performance analysis",
	"Sales forecasting by region",
	"Top customers by revenue",
	"Part demand analysis",
	"Order fulfillment metrics",
	"Geographic sales distribution",
	"Seasonal trends analysis",
	"Supply chain efficiency metrics",
}

// SchemaContext renders the curated schema as prompt text for the
// text-to-SQL flow.
func SchemaContext() string {
	var b strings.Builder
	b.WriteString("Database Schema Information:\n\n")

	for _, table := range tpchTables {
		b.WriteString("Table: " + table.Name + "\n")
		b.WriteString("Description: " + table.Description + "\n")
		b.WriteString("Columns: " + strings.Join(table.Columns, ", ") + "\n")
		b.WriteString("Primary Key: " + strings.Join(table.PrimaryKey, ", ") + "\n")

		if len(table.ForeignKeys) > 0 {
			refs := make([]string, len(table.ForeignKeys))
			for i, fk := range table.ForeignKeys {
				refs[i] = fk.Column + " -> " + fk.Ref
			}
			b.WriteString("Foreign Keys: " + strings.Join(refs, ", ") + "\n")
		}
		b.WriteString("\n")
	}

	b.WriteString("Relationships:\n")
	for _, rel := range tpchRelationships {
		b.WriteString("- " + rel + "\n")
	}

	b.WriteString("\nCommon Query Types:\n")
	for _, qt := range tpchCommonQueries {
		b.WriteString("- " + qt + "\n")
	}

	return b.String()
}
