package fsmhost

import (
	"fmt"
	"reflect"

	"gorm.io/gorm"
)

// GormEntity adapts an arbitrary GORM model pointer to the Entity interface.
// It is grounded on the teacher's internal/db/database.go connection/model
// conventions: models are plain structs with an ID field, saved through a
// shared *gorm.DB handle, but here the CAS update is expressed directly as a
// conditional UPDATE ... WHERE column = expected rather than a GORM save, so
// rowsAffected can be observed.
type GormEntity struct {
	DB    *gorm.DB
	Model any // pointer to a GORM model struct, e.g. *Order
	Class string
	KeyField string // struct field name holding the primary key, defaults to "ID"
}

func NewGormEntity(db *gorm.DB, model any, class string) *GormEntity {
	return &GormEntity{DB: db, Model: model, Class: class, KeyField: "ID"}
}

func (e *GormEntity) GetKey() any {
	return e.fieldValue(e.KeyField)
}

func (e *GormEntity) GetMorphClass() string {
	if e.Class != "" {
		return e.Class
	}
	return reflect.TypeOf(e.Model).Elem().Name()
}

func (e *GormEntity) GetAttribute(name string) any {
	return e.fieldValue(name)
}

func (e *GormEntity) SetAttribute(name string, value any) {
	rv := e.field(name)
	if !rv.IsValid() || !rv.CanSet() {
		return
	}
	val := reflect.ValueOf(value)
	if value == nil {
		rv.Set(reflect.Zero(rv.Type()))
		return
	}
	if val.Type().ConvertibleTo(rv.Type()) {
		rv.Set(val.Convert(rv.Type()))
	}
}

func (e *GormEntity) Exists() bool {
	key := e.GetKey()
	switch v := key.(type) {
	case uint:
		return v != 0
	case uint64:
		return v != 0
	case int:
		return v != 0
	case string:
		return v != ""
	default:
		return key != nil
	}
}

func (e *GormEntity) Save() error {
	return e.DB.Save(e.Model).Error
}

func (e *GormEntity) UpdateWhere(key any, column string, expectedValue, newValue string) (int64, error) {
	table := e.DB.NamingStrategy.TableName(e.GetMorphClass())
	result := e.DB.Table(table).
		Where(fmt.Sprintf("%s = ?", e.DB.NamingStrategy.ColumnName(table, e.KeyField)), key).
		Where(fmt.Sprintf("%s = ?", e.DB.NamingStrategy.ColumnName(table, column)), expectedValue).
		Update(e.DB.NamingStrategy.ColumnName(table, column), newValue)
	if result.Error != nil {
		return 0, result.Error
	}
	return result.RowsAffected, nil
}

func (e *GormEntity) fieldValue(name string) any {
	rv := e.field(name)
	if !rv.IsValid() {
		return nil
	}
	return rv.Interface()
}

// field finds the model's struct field for name, accepting either the Go
// field name ("Status") or its database column name ("status").
func (e *GormEntity) field(name string) reflect.Value {
	rv := reflect.ValueOf(e.Model).Elem()
	if f := rv.FieldByName(name); f.IsValid() || e.DB == nil {
		return f
	}
	return rv.FieldByNameFunc(func(fieldName string) bool {
		return e.DB.NamingStrategy.ColumnName("", fieldName) == name
	})
}
