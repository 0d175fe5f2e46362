package model

// TestCatalog is the fixed list of laboratory test names a kit can belong to.
var TestCatalog = []string{
	"Alanin aminotransferaz (ALT) (Serum/Plazma)",
	"Albümin (Serum/Plazma)",
	"Alkalen fosfataz (Serum/Plazma)",
	"Amilaz (Serum/Plazma)",
	"Antistreptolizin O (ASO)",
	"Aspartat aminotransferaz (AST) (Serum/Plazma)",
	"Bilirubin, direkt (Serum/Plazma)",
	"Bilirubin, total (Serum/Plazma)",
	"C reaktif protein (CRP)",
	"Demir (Serum/Plazma)",
	"Demir bağlama kapasitesi",
	"Etanol (Serum/Plazma)",
	"Fosfor (Serum/Plazma)",
	"Gamma glutamil transferaz (GGT) (Serum/Plazma)",
	"Glukoz (Serum/Plazma)",
	"HDL kolesterol",
	"Kalsiyum (Serum/Plazma)",
	"Klorür (Serum/Plazma)",
	"Kolesterol (Serum/Plazma)",
	"Kreatin kinaz (Serum/Plazma)",
	"Kreatinin (Serum/Plazma)",
	"Laktat dehidrogenaz (Serum/Plazma)",
	"LDL kolesterol (Direkt)",
	"Magnezyum (Serum/Plazma)",
	"Potasyum (Serum/Plazma)",
	"Protein (Serum/Plazma)",
	"Romatoid faktör (RF)",
	"Sodyum (Serum/Plazma)",
	"Trigliserid (Serum/Plazma)",
	"Üre (Serum/Plazma)",
	"Ürik asit (Serum/Plazma)",
	"Glike hemoglobin (Hb A1c)",
	"Anti HBs",
	"Anti HCV",
	"Anti HIV",
	"HBsAg",
	"25-Hidroksi vitamin D",
	"Estradiol (E2)",
	"Ferritin (Serum/Plazma)",
	"Folat (Serum/Plazma)",
	"FSH",
	"İnsülin",
	"CK-MB",
	"LH",
	"Parathormon (PTH)",
	"Prolaktin",
	"PSA total",
	"Serbest T3",
	"Serbest T4",
	"Total HCG",
	"Troponin I",
	"TSH",
	"Vitamin B12",
}

var catalogIndex = func() map[string]bool {
	m := make(map[string]bool, len(TestCatalog))
	for _, name := range TestCatalog {
		m[name] = true
	}
	return m
}()

// IsCatalogTest reports whether name is one of the catalog test names.
func IsCatalogTest(name string) bool {
	return catalogIndex[name]
}
