package ingest

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDetectFileType(t *testing.T) {
	tests := []struct {
		name   string
		want   FileType
		wantOK bool
	}{
		{"acme_stock_20240101.csv", FileTypeStock, true},
		{"/in/ACME_ZAIKO.xlsx", FileTypeStock, true},
		{"acme_price.csv", FileTypePrice, true},
		{"acme_tanka_2024.xlsx", FileTypePrice, true},
		{"acme_2024.csv", "", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := DetectFileType(tt.name)
			assert.Equal(t, tt.wantOK, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestSupplierFromFileName(t *testing.T) {
	tests := []struct {
		name   string
		want   string
		wantOK bool
	}{
		{"acme_stock_20240101.csv", "acme", true},
		{"/data/in/supplier_a_zaiko.xlsx", "supplier_a", true},
		{"supplierB_TANKA.csv", "supplierB", true},
		{"bolt_2024.csv", "bolt", true},
		{"2024_acme_stock.csv", "", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := SupplierFromFileName(tt.name)
			assert.Equal(t, tt.wantOK, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestParseFileType(t *testing.T) {
	ft, ok := ParseFileType(" Stock ")
	assert.True(t, ok)
	assert.Equal(t, FileTypeStock, ft)

	_, ok = ParseFileType("inventory")
	assert.False(t, ok)
}
