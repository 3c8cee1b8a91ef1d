package table

// Result est un enregistrement projeté : RID plus les valeurs des colonnes
// demandées, dans l'ordre de la projection (forme dense — seules les
// colonnes incluses sont présentes).
type Result struct {
	RID     int64
	Columns []int64
}
