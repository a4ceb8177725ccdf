package registry

import "github.com/BartekS5/importer/pkg/models"

func legacyIDField() models.FieldSpec {
	return models.FieldSpec{
		Key: FieldLegacyID, Label: "Legacy ID", Type: models.TypeString,
		Aliases: []string{"old id", "external id", "source id"}, Example: "1001",
	}
}

func lookup(target string, e models.EntityType, on models.MatchOn) *models.LookupSpec {
	return &models.LookupSpec{TargetField: target, Entity: e, MatchOn: on}
}

var usersSpec = models.EntitySpec{
	Type:  models.EntityUsers,
	Label: "Users",
	Fields: []models.FieldSpec{
		{Key: "name", Label: "Name", Required: true, Type: models.TypeString,
			Aliases: []string{"full name", "user name", "display name"}, Example: "A. Lee"},
		{Key: "email", Label: "Email", Required: true, Type: models.TypeString, Format: "email",
			Aliases: []string{"email address", "e-mail", "mail"}, Example: "a.lee@example.com"},
		{Key: "role", Label: "Role", Type: models.TypeEnum, Default: "TECHNICIAN",
			EnumValues: []string{"ADMIN", "MANAGER", "TECHNICIAN", "REQUESTER", "VIEWER"}, Example: "MANAGER"},
		{Key: "phone", Label: "Phone", Type: models.TypeString,
			Aliases: []string{"phone number", "mobile"}, Example: "+1 555 0100"},
		{Key: "jobTitle", Label: "Job Title", Type: models.TypeString, Aliases: []string{"title", "position"}, Example: "Maintenance Lead"},
		{Key: "password", Label: "Password", Type: models.TypeString},
		{Key: "active", Label: "Active", Type: models.TypeBoolean, Example: "yes"},
		legacyIDField(),
	},
	IdentityFields: []string{"email", FieldLegacyID},
	NaturalKeys:    []string{"name", "email"},
	Synonyms: map[string]map[string]string{
		"role": {
			"ADMINISTRATOR": "ADMIN", "OWNER": "ADMIN",
			"SUPERVISOR": "MANAGER", "LEAD": "MANAGER",
			"TECH": "TECHNICIAN", "MECHANIC": "TECHNICIAN", "ENGINEER": "TECHNICIAN",
			"REQUESTOR": "REQUESTER", "USER": "REQUESTER",
			"READONLY": "VIEWER", "READ_ONLY": "VIEWER", "GUEST": "VIEWER",
		},
	},
}

var locationsSpec = models.EntitySpec{
	Type:  models.EntityLocations,
	Label: "Locations",
	Fields: []models.FieldSpec{
		{Key: "name", Label: "Name", Required: true, Type: models.TypeString,
			Aliases: []string{"location", "location name", "site"}, Example: "Building A"},
		{Key: "address", Label: "Address", Type: models.TypeString, Example: "1 Main St"},
		{Key: "description", Label: "Description", Type: models.TypeString, Example: "Main plant"},
		{Key: "parentName", Label: "Parent Location", Type: models.TypeString,
			Lookup: lookup("parentId", models.EntityLocations, models.MatchName),
			Aliases: []string{"parent location name"}, Example: "Campus"},
		{Key: "parentId", Label: "Parent Location ID", Type: models.TypeNumber},
		legacyIDField(),
	},
	IdentityFields: []string{"name", FieldLegacyID},
	NaturalKeys:    []string{"name"},
}

var suppliersSpec = models.EntitySpec{
	Type:  models.EntitySuppliers,
	Label: "Suppliers",
	Fields: []models.FieldSpec{
		{Key: "name", Label: "Name", Required: true, Type: models.TypeString,
			Aliases: []string{"supplier", "supplier name", "vendor", "company"}, Example: "Acme Industrial"},
		{Key: "contactName", Label: "Contact Name", Type: models.TypeString, Aliases: []string{"contact"}, Example: "Sam Ortiz"},
		{Key: "email", Label: "Email", Type: models.TypeString, Format: "email", Example: "orders@acme.example"},
		{Key: "phone", Label: "Phone", Type: models.TypeString, Example: "+1 555 0199"},
		{Key: "address", Label: "Address", Type: models.TypeString, Example: "22 Dock Rd"},
		{Key: "website", Label: "Website", Type: models.TypeString, Format: "url", Aliases: []string{"url", "web"}, Example: "https://acme.example"},
		legacyIDField(),
	},
	IdentityFields: []string{"name", FieldLegacyID},
	NaturalKeys:    []string{"name", "email"},
}

var partsSpec = models.EntitySpec{
	Type:  models.EntityParts,
	Label: "Parts",
	Fields: []models.FieldSpec{
		{Key: "name", Label: "Name", Required: true, Type: models.TypeString,
			Aliases: []string{"part", "part name", "item"}, Example: "V-Belt A42"},
		{Key: "sku", Label: "SKU", Type: models.TypeString,
			Aliases: []string{"part number", "part no", "item code"}, Example: "VB-A42"},
		{Key: "description", Label: "Description", Type: models.TypeString, Example: "Drive belt"},
		{Key: "category", Label: "Category", Type: models.TypeString, Example: "Belts"},
		{Key: "unitCost", Label: "Unit Cost", Type: models.TypeNumber, Aliases: []string{"cost", "price", "unit price"}, Example: "12.50"},
		{Key: "quantity", Label: "Quantity", Type: models.TypeNumber, Aliases: []string{"qty", "on hand", "stock"}, Example: "8"},
		{Key: "minQuantity", Label: "Minimum Quantity", Type: models.TypeNumber, Aliases: []string{"min qty", "reorder point"}, Example: "2"},
		{Key: "supplierName", Label: "Supplier", Type: models.TypeString,
			Lookup: lookup("supplierId", models.EntitySuppliers, models.MatchName),
			Aliases: []string{"supplier name", "vendor"}, Example: "Acme Industrial"},
		{Key: "supplierId", Label: "Supplier ID", Type: models.TypeNumber},
		{Key: "locationName", Label: "Location", Type: models.TypeString,
			Lookup: lookup("locationId", models.EntityLocations, models.MatchName),
			Aliases: []string{"location name", "storeroom"}, Example: "Building A"},
		{Key: "locationId", Label: "Location ID", Type: models.TypeNumber},
		legacyIDField(),
	},
	IdentityFields: []string{"sku", FieldLegacyID},
	NaturalKeys:    []string{"name", "sku"},
}

var assetsSpec = models.EntitySpec{
	Type:  models.EntityAssets,
	Label: "Assets",
	Fields: []models.FieldSpec{
		{Key: "name", Label: "Name", Required: true, Type: models.TypeString,
			Aliases: []string{"asset", "asset name", "equipment"}, Example: "Air Compressor 1"},
		{Key: "serialNumber", Label: "Serial Number", Type: models.TypeString,
			Aliases: []string{"serial", "serial no", "s/n"}, Example: "AC-2231-X"},
		{Key: "model", Label: "Model", Type: models.TypeString, Example: "GA30"},
		{Key: "manufacturer", Label: "Manufacturer", Type: models.TypeString, Aliases: []string{"make", "brand"}, Example: "Atlas"},
		{Key: "category", Label: "Category", Type: models.TypeString, Aliases: []string{"type", "asset type"}, Example: "Compressors"},
		{Key: "status", Label: "Status", Type: models.TypeEnum, Default: "OPERATIONAL",
			EnumValues: []string{"OPERATIONAL", "DOWN", "MAINTENANCE", "RETIRED"}, Example: "OPERATIONAL"},
		{Key: "purchaseDate", Label: "Purchase Date", Type: models.TypeDate, Aliases: []string{"purchased", "install date"}, Example: "2021-04-15"},
		{Key: "purchaseCost", Label: "Purchase Cost", Type: models.TypeNumber, Aliases: []string{"cost", "price"}, Example: "15400"},
		{Key: "locationName", Label: "Location", Type: models.TypeString,
			Lookup: lookup("locationId", models.EntityLocations, models.MatchName),
			Aliases: []string{"location name", "site"}, Example: "Building A"},
		{Key: "locationId", Label: "Location ID", Type: models.TypeNumber},
		{Key: "parentAssetName", Label: "Parent Asset", Type: models.TypeString,
			Lookup: lookup("parentId", models.EntityAssets, models.MatchName),
			Aliases: []string{"parent asset name", "parent"}, Example: "Compressor Skid"},
		{Key: "parentId", Label: "Parent Asset ID", Type: models.TypeNumber},
		legacyIDField(),
	},
	IdentityFields: []string{"name", "serialNumber", FieldLegacyID},
	NaturalKeys:    []string{"name"},
	Synonyms: map[string]map[string]string{
		"status": {
			"ACTIVE": "OPERATIONAL", "RUNNING": "OPERATIONAL", "ONLINE": "OPERATIONAL", "OK": "OPERATIONAL", "IN_SERVICE": "OPERATIONAL",
			"OFFLINE": "DOWN", "BROKEN": "DOWN", "FAILED": "DOWN", "OUT_OF_SERVICE": "DOWN",
			"UNDER_MAINTENANCE": "MAINTENANCE", "REPAIR": "MAINTENANCE", "SERVICING": "MAINTENANCE",
			"DISPOSED": "RETIRED", "DECOMMISSIONED": "RETIRED", "SOLD": "RETIRED", "INACTIVE": "RETIRED",
		},
	},
}

// Work-order status vocabulary of legacy systems folds onto five canonical states.
var workOrdersSpec = models.EntitySpec{
	Type:  models.EntityWorkOrders,
	Label: "Work Orders",
	Fields: []models.FieldSpec{
		{Key: "title", Label: "Title", Required: true, Type: models.TypeString,
			Aliases: []string{"work order", "summary", "subject", "name"}, Example: "Quarterly compressor inspection"},
		{Key: "description", Label: "Description", Type: models.TypeString,
			Aliases: []string{"details", "notes"}, Example: "Inspect belts and check oil level"},
		{Key: "status", Label: "Status", Type: models.TypeEnum, Default: "OPEN",
			EnumValues: []string{"OPEN", "IN_PROGRESS", "ON_HOLD", "COMPLETED", "CANCELED"}, Example: "OPEN"},
		{Key: "priority", Label: "Priority", Type: models.TypeEnum, Default: "MEDIUM",
			EnumValues: []string{"LOW", "MEDIUM", "HIGH", "CRITICAL"}, Example: "HIGH"},
		{Key: "workType", Label: "Work Type", Type: models.TypeEnum, Default: "CORRECTIVE",
			EnumValues: []string{"CORRECTIVE", "PREVENTIVE", "INSPECTION", "EMERGENCY", "PROJECT"},
			Aliases: []string{"type", "category", "maintenance type"}, Example: "PREVENTIVE"},
		{Key: "dueDate", Label: "Due Date", Type: models.TypeDate, Aliases: []string{"due", "scheduled date"}, Example: "2024-07-01"},
		{Key: "completedDate", Label: "Completed Date", Type: models.TypeDate, Aliases: []string{"completed", "closed date", "completion date"}},
		{Key: "estimatedHours", Label: "Estimated Duration", Type: models.TypeNumber, Duration: true,
			Aliases: []string{"estimated hours", "duration", "est time", "labor hours"}, Example: "1:30:00"},
		{Key: "recurrence", Label: "Recurrence", Type: models.TypeString,
			Aliases: []string{"frequency", "repeat", "schedule", "interval"}, Example: "every 3 months"},
		{Key: "assetName", Label: "Asset", Type: models.TypeString,
			Lookup: lookup("assetId", models.EntityAssets, models.MatchName),
			Aliases: []string{"asset name", "equipment"}, Example: "Air Compressor 1"},
		{Key: "assetId", Label: "Asset ID", Type: models.TypeNumber},
		{Key: "assignedToEmail", Label: "Assigned To", Type: models.TypeString,
			Lookup: lookup("assignedToId", models.EntityUsers, models.MatchEmail),
			Aliases: []string{"assignee", "technician", "assigned to email"}, Example: "a.lee@example.com"},
		{Key: "assignedToId", Label: "Assigned To ID", Type: models.TypeNumber},
		{Key: "locationName", Label: "Location", Type: models.TypeString,
			Lookup: lookup("locationId", models.EntityLocations, models.MatchName),
			Aliases: []string{"location name", "site"}, Example: "Building A"},
		{Key: "locationId", Label: "Location ID", Type: models.TypeNumber},
		{Key: "scheduleId", Label: "Schedule ID", Type: models.TypeNumber},
		legacyIDField(),
	},
	IdentityFields: []string{FieldLegacyID},
	Synonyms: map[string]map[string]string{
		"status": {
			"DONE": "COMPLETED", "COMPLETE": "COMPLETED", "CLOSED": "COMPLETED", "FINISHED": "COMPLETED", "RESOLVED": "COMPLETED",
			"APPROVED": "OPEN", "PENDING": "OPEN", "NEW": "OPEN", "REQUESTED": "OPEN", "OPENED": "OPEN",
			"REJECTED": "CANCELED", "CANCELLED": "CANCELED", "CANCEL": "CANCELED", "VOID": "CANCELED",
			"STARTED": "IN_PROGRESS", "WIP": "IN_PROGRESS", "ACTIVE": "IN_PROGRESS",
			"HOLD": "ON_HOLD", "PAUSED": "ON_HOLD", "WAITING": "ON_HOLD",
		},
		"priority": {
			"URGENT": "CRITICAL", "HIGHEST": "CRITICAL", "EMERGENCY": "CRITICAL",
			"NORMAL": "MEDIUM", "MED": "MEDIUM",
			"LOWEST": "LOW", "NONE": "LOW",
		},
		"workType": {
			"PM": "PREVENTIVE", "PREVENTATIVE": "PREVENTIVE", "PLANNED": "PREVENTIVE", "SCHEDULED": "PREVENTIVE",
			"PREVENTIVE_MAINTENANCE": "PREVENTIVE", "PREVENTATIVE_MAINTENANCE": "PREVENTIVE",
			"REACTIVE": "CORRECTIVE", "BREAKDOWN": "CORRECTIVE", "REPAIR": "CORRECTIVE", "CM": "CORRECTIVE",
			"INSPECT": "INSPECTION",
		},
	},
}

var maintenanceTasksSpec = models.EntitySpec{
	Type:  models.EntityMaintenanceTasks,
	Label: "Maintenance Tasks",
	Fields: []models.FieldSpec{
		{Key: "name", Label: "Name", Required: true, Type: models.TypeString,
			Aliases: []string{"task", "task name"}, Example: "Compressor inspection"},
		{Key: "description", Label: "Description", Type: models.TypeString, Aliases: []string{"instructions", "steps"}, Example: "Inspect belts"},
		{Key: "taskType", Label: "Task Type", Type: models.TypeEnum, Default: "OTHER",
			EnumValues: []string{"INSPECTION", "CLEANING", "LUBRICATION", "REPLACEMENT", "CALIBRATION", "TESTING", "REPAIR", "OTHER"},
			Aliases: []string{"type", "category"}, Example: "INSPECTION"},
		{Key: "estimatedHours", Label: "Estimated Duration", Type: models.TypeNumber, Duration: true,
			Aliases: []string{"estimated hours", "duration", "est time"}, Example: "0:45:00"},
		{Key: "assetName", Label: "Asset", Type: models.TypeString,
			Lookup: lookup("assetId", models.EntityAssets, models.MatchName),
			Aliases: []string{"asset name", "equipment"}, Example: "Air Compressor 1"},
		{Key: "assetId", Label: "Asset ID", Type: models.TypeNumber},
		legacyIDField(),
	},
	IdentityFields: []string{"name", FieldLegacyID},
	NaturalKeys:    []string{"name"},
	Synonyms: map[string]map[string]string{
		"taskType": {
			"INSPECT": "INSPECTION", "CLEAN": "CLEANING", "LUBE": "LUBRICATION", "GREASE": "LUBRICATION",
			"REPLACE": "REPLACEMENT", "CALIBRATE": "CALIBRATION", "TEST": "TESTING", "FIX": "REPAIR",
		},
	},
}

var maintenanceSchedulesSpec = models.EntitySpec{
	Type:  models.EntityMaintenanceSchedules,
	Label: "Maintenance Schedules",
	Fields: []models.FieldSpec{
		{Key: "name", Label: "Name", Required: true, Type: models.TypeString,
			Aliases: []string{"schedule", "schedule name"}, Example: "Compressor quarterly PM"},
		{Key: "description", Label: "Description", Type: models.TypeString, Example: "Quarterly preventive maintenance"},
		{Key: "frequency", Label: "Frequency", Type: models.TypeEnum, Default: "MONTHLY",
			EnumValues: []string{"DAILY", "WEEKLY", "MONTHLY", "QUARTERLY", "SEMIANNUAL", "YEARLY", "CUSTOM"},
			Aliases: []string{"recurrence", "repeat"}, Example: "QUARTERLY"},
		{Key: "interval", Label: "Interval", Type: models.TypeNumber, Aliases: []string{"every"}, Example: "1"},
		{Key: "cronExpression", Label: "Cron Expression", Type: models.TypeString, Aliases: []string{"cron"}},
		{Key: "startDate", Label: "Start Date", Type: models.TypeDate, Aliases: []string{"start", "first due"}, Example: "2024-07-01"},
		{Key: "nextDueDate", Label: "Next Due Date", Type: models.TypeDate, Aliases: []string{"next due", "due date"}},
		{Key: "assetName", Label: "Asset", Type: models.TypeString,
			Lookup: lookup("assetId", models.EntityAssets, models.MatchName),
			Aliases: []string{"asset name", "equipment"}, Example: "Air Compressor 1"},
		{Key: "assetId", Label: "Asset ID", Required: true, Type: models.TypeNumber},
		{Key: "taskName", Label: "Task", Type: models.TypeString,
			Lookup: lookup("taskId", models.EntityMaintenanceTasks, models.MatchName),
			Aliases: []string{"task name", "maintenance task"}, Example: "Compressor inspection"},
		{Key: "taskId", Label: "Task ID", Type: models.TypeNumber},
		{Key: "active", Label: "Active", Type: models.TypeBoolean, Example: "yes"},
		legacyIDField(),
	},
	IdentityFields: []string{"name", FieldLegacyID},
	NaturalKeys:    []string{"name"},
	Synonyms: map[string]map[string]string{
		"frequency": {
			"DAY": "DAILY", "WEEK": "WEEKLY", "MONTH": "MONTHLY", "QUARTER": "QUARTERLY",
			"ANNUAL": "YEARLY", "ANNUALLY": "YEARLY", "YEAR": "YEARLY",
			"BIANNUAL": "SEMIANNUAL", "SEMI_ANNUAL": "SEMIANNUAL", "SEMI_ANNUALLY": "SEMIANNUAL",
		},
	},
}
